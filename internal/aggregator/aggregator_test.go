package aggregator

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"polywhales/internal/model"
)

func fill(price, size string, ts int64) model.RawTrade {
	return model.RawTrade{
		Trader:    "0xwhale",
		Market:    "0xcondition",
		Side:      model.SideBuy,
		Outcome:   1,
		Price:     decimal.RequireFromString(price),
		Size:      decimal.RequireFromString(size),
		Timestamp: ts,
		Title:     "Test market",
	}
}

func newTestAggregator(minUSD int64) *Aggregator {
	return New(Options{
		Window:      60 * time.Second,
		Grace:       10 * time.Second,
		MinAlertUSD: decimal.NewFromInt(minUSD),
	}, zerolog.Nop())
}

func TestSmallFillsAccumulateToOneAlert(t *testing.T) {
	agg := newTestAggregator(500)
	now := time.Now()

	// 三笔 $200, 累计 $600, 第三笔越过阈值
	if _, ok := agg.Process(fill("0.5", "400", 100), now); ok {
		t.Fatal("第一笔 $200 不应触发告警")
	}
	if _, ok := agg.Process(fill("0.5", "400", 101), now.Add(5*time.Second)); ok {
		t.Fatal("累计 $400 不应触发告警")
	}
	out, ok := agg.Process(fill("0.5", "400", 102), now.Add(10*time.Second))
	if !ok {
		t.Fatal("累计 $600 应触发告警")
	}
	if out.Fills != 3 {
		t.Fatalf("期望 3 笔, 实际 %d", out.Fills)
	}
	if !out.ValueUSD.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("期望累计 $600, 实际 %s", out.ValueUSD)
	}
	if !out.IsAggregate {
		t.Fatal("IsAggregate 应为 true")
	}
	if out.FirstSeen != 100 {
		t.Fatalf("FirstSeen 应取首笔时间戳, 实际 %d", out.FirstSeen)
	}
}

func TestLargeSingleFillFiresImmediately(t *testing.T) {
	agg := newTestAggregator(500)

	out, ok := agg.Process(fill("0.5", "2000", 100), time.Now())
	if !ok {
		t.Fatal("$1000 单笔应立即触发")
	}
	if out.Fills != 1 {
		t.Fatalf("期望 1 笔, 实际 %d", out.Fills)
	}
}

func TestSeriesFiresAtMostOnce(t *testing.T) {
	agg := newTestAggregator(500)
	now := time.Now()

	if _, ok := agg.Process(fill("0.5", "2000", 100), now); !ok {
		t.Fatal("首笔应触发")
	}
	// 同一窗口内的后续成交不应再触发
	if _, ok := agg.Process(fill("0.5", "2000", 101), now.Add(time.Second)); ok {
		t.Fatal("同一 series 不应重复告警")
	}
}

func TestWindowBoundaryDiscardsPartialSum(t *testing.T) {
	agg := newTestAggregator(500)
	now := time.Now()

	if _, ok := agg.Process(fill("0.5", "800", 100), now); ok {
		t.Fatal("$400 不应触发")
	}
	// 窗口过期后 $400 不结转: 新窗口里的 $200 不够阈值
	if _, ok := agg.Process(fill("0.5", "400", 200), now.Add(61*time.Second)); ok {
		t.Fatal("跨窗口累计不应结转旧余额")
	}
}

func TestNewWindowCanAlertAgain(t *testing.T) {
	agg := newTestAggregator(500)
	now := time.Now()

	if _, ok := agg.Process(fill("0.5", "2000", 100), now); !ok {
		t.Fatal("第一窗口应触发")
	}
	out, ok := agg.Process(fill("0.5", "2000", 200), now.Add(61*time.Second))
	if !ok {
		t.Fatal("窗口过期后新 series 应可再次触发")
	}
	if out.Fills != 1 {
		t.Fatalf("新窗口应重新计数, 实际 %d", out.Fills)
	}
}

func TestSeriesKeyedByTraderMarketSideOutcome(t *testing.T) {
	agg := newTestAggregator(500)
	now := time.Now()

	buy := fill("0.5", "800", 100)
	sell := buy
	sell.Side = model.SideSell

	if _, ok := agg.Process(buy, now); ok {
		t.Fatal("$400 买单不应触发")
	}
	// 反向的卖单属于不同 series, 不应与买单累计
	if _, ok := agg.Process(sell, now); ok {
		t.Fatal("不同 side 不应合并累计")
	}
	if agg.ActiveSeries() != 2 {
		t.Fatalf("期望 2 个活跃 series, 实际 %d", agg.ActiveSeries())
	}
}

func TestVolumeWeightedAveragePrice(t *testing.T) {
	agg := newTestAggregator(500)
	now := time.Now()

	agg.Process(fill("0.40", "1000", 100), now)                        // $400
	out, ok := agg.Process(fill("0.60", "3000", 101), now.Add(time.Second)) // $1800
	if !ok {
		t.Fatal("累计 $2200 应触发")
	}
	// (0.40*1000 + 0.60*3000) / 4000 = 0.55
	want := decimal.RequireFromString("0.55")
	if !out.AvgPrice.Equal(want) {
		t.Fatalf("加权均价期望 0.55, 实际 %s", out.AvgPrice)
	}
	if !out.Size.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("累计 size 期望 4000, 实际 %s", out.Size)
	}
}

func TestCleanupDropsIdleSeries(t *testing.T) {
	agg := newTestAggregator(500)
	now := time.Now()

	agg.Process(fill("0.5", "100", 100), now)
	if agg.ActiveSeries() != 1 {
		t.Fatal("应有一个活跃 series")
	}

	// 空闲未超过 window+grace 时保留
	agg.Cleanup(now.Add(30 * time.Second))
	if agg.ActiveSeries() != 1 {
		t.Fatal("未过期的 series 不应被清理")
	}

	agg.Cleanup(now.Add(71 * time.Second))
	if agg.ActiveSeries() != 0 {
		t.Fatalf("过期 series 应被清理, 剩余 %d", agg.ActiveSeries())
	}
}

func TestCleanupRateLimited(t *testing.T) {
	agg := newTestAggregator(500)
	now := time.Now()

	agg.Process(fill("0.5", "100", 100), now)
	agg.Cleanup(now) // 激活限速时间戳
	// 5 秒后再次调用在限速窗口内, 即使 series 已过期也不动作
	agg.active[model.RawTrade{Trader: "0xwhale", Market: "0xcondition", Side: model.SideBuy, Outcome: 1}.SeriesKey()].lastUpdate = now.Add(-2 * time.Minute)
	agg.Cleanup(now.Add(5 * time.Second))
	if agg.ActiveSeries() != 1 {
		t.Fatal("限速窗口内不应执行清理")
	}
}
