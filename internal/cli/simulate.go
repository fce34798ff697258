package cli

import (
	"time"

	"github.com/spf13/cobra"

	"polywhales/internal/app"
)

var (
	simulateFills    int
	simulateFillUSD  float64
	simulatePrice    float64
	simulateInterval time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "用合成成交驱动一次聚合与告警流程",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Fills:    simulateFills,
			FillUSD:  simulateFillUSD,
			Price:    simulatePrice,
			Interval: simulateInterval,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateFills, "fills", 3, "合成成交笔数")
	simulateCmd.Flags().Float64Var(&simulateFillUSD, "fill-usd", 200, "单笔美元价值")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0.5, "成交价格 (0-1)")
	simulateCmd.Flags().DurationVar(&simulateInterval, "interval", time.Second, "相邻成交的时间间隔")
}
