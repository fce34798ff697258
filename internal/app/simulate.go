package app

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"polywhales/internal/aggregator"
	"polywhales/internal/alerting"
	"polywhales/internal/category"
	"polywhales/internal/model"
	"polywhales/internal/router"
)

// Simulate 用合成的成交序列驱动聚合与分发流程，输出到控制台。
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Fills <= 0 {
		return errors.New("--fills must be greater than zero")
	}
	if opts.FillUSD <= 0 {
		return errors.New("--fill-usd must be greater than zero")
	}
	price := opts.Price
	if price <= 0 || price >= 1 {
		price = 0.5
	}

	agg := aggregator.New(aggregator.Options{
		Window:      a.Config.Aggregator.Window,
		Grace:       a.Config.Aggregator.Grace,
		MinAlertUSD: decimal.NewFromFloat(a.Config.Aggregator.MinAlertUSD),
	}, a.Logger)

	subs := a.subscribers()
	if len(subs) == 0 {
		subs = router.StaticSubscribers{{
			ChatID:     "console",
			MinUSD:     decimal.Zero,
			Categories: map[string]bool{"all": true},
			Active:     true,
			Language:   "en",
		}}
	}

	alertRouter := router.New(router.Options{
		QueueSize:   a.Config.Dispatch.QueueSize,
		SendTimeout: a.Config.Dispatch.SendTimeout,
	}, subs, category.NewKeywords(), &alerting.ConsoleNotifier{Out: os.Stdout}, nil, a.Logger)
	alertRouter.Start(ctx)
	defer alertRouter.Close()

	priceDec := decimal.NewFromFloat(price)
	size := decimal.NewFromFloat(opts.FillUSD).Div(priceDec)
	now := time.Now().UTC()

	for i := 0; i < opts.Fills; i++ {
		trade := model.RawTrade{
			Trader:     "0x0000000000000000000000000000000000000001",
			TraderName: "Simulated Trader",
			Market:     "simulated-condition",
			Side:       model.SideBuy,
			OutcomeStr: "Yes",
			Price:      priceDec,
			Size:       size,
			Timestamp:  now.Unix() + int64(i),
			Title:      "Simulated market: will the pipeline alert?",
			EventSlug:  "simulated-market",
		}

		if result, fire := agg.Process(trade, now.Add(time.Duration(i)*opts.Interval)); fire {
			alertRouter.Enqueue(result)
		}
	}

	return nil
}
