package aggregator

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"polywhales/internal/model"
)

// Options tune series aggregation.
type Options struct {
	Window      time.Duration   // accumulation window measured from the first fill
	Grace       time.Duration   // extra idle time before a series is garbage collected
	MinAlertUSD decimal.Decimal // cumulative USD that triggers an alert
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Window:      60 * time.Second,
		Grace:       10 * time.Second,
		MinAlertUSD: decimal.NewFromInt(500),
	}
}

// series accumulates same-key fills inside one window.
type series struct {
	windowStart time.Time
	lastUpdate  time.Time
	usdSum      decimal.Decimal
	sizeSum     decimal.Decimal
	priceNum    decimal.Decimal // volume-weighted price numerator, Σ(price·size)
	fills       int
	alertSent   bool
	first       model.RawTrade
}

// Aggregator groups fills by (trader, market, side, outcome) into
// time-bounded series and decides when a series is worth alerting.
// Not safe for concurrent use; the poll loop is the sole owner.
type Aggregator struct {
	opts        Options
	active      map[model.SeriesKey]*series
	lastCleanup time.Time
	logger      zerolog.Logger
}

// New constructs an Aggregator.
func New(opts Options, logger zerolog.Logger) *Aggregator {
	if opts.Window <= 0 {
		opts.Window = DefaultOptions().Window
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultOptions().Grace
	}
	if opts.MinAlertUSD.IsZero() {
		opts.MinAlertUSD = DefaultOptions().MinAlertUSD
	}

	return &Aggregator{
		opts:   opts,
		active: make(map[model.SeriesKey]*series),
		logger: logger.With().Str("component", "aggregator").Logger(),
	}
}

// Process accumulates one fill. It returns an AggregatedTrade exactly
// once per series: the first time the running USD sum reaches the
// threshold. A series whose window has elapsed is replaced by a fresh
// one; partial sub-threshold sums are intentionally discarded at the
// window boundary, never carried over.
func (a *Aggregator) Process(trade model.RawTrade, now time.Time) (model.AggregatedTrade, bool) {
	key := trade.SeriesKey()

	ser, ok := a.active[key]
	if !ok || now.Sub(ser.windowStart) > a.opts.Window {
		ser = &series{
			windowStart: now,
			usdSum:      decimal.Zero,
			sizeSum:     decimal.Zero,
			priceNum:    decimal.Zero,
			first:       trade,
		}
		a.active[key] = ser
	}

	value := trade.ValueUSD()
	ser.usdSum = ser.usdSum.Add(value)
	ser.sizeSum = ser.sizeSum.Add(trade.Size)
	ser.priceNum = ser.priceNum.Add(value)
	ser.fills++
	ser.lastUpdate = now

	if ser.alertSent || ser.usdSum.LessThan(a.opts.MinAlertUSD) {
		return model.AggregatedTrade{}, false
	}
	ser.alertSent = true

	avgPrice := decimal.Zero
	if !ser.sizeSum.IsZero() {
		avgPrice = ser.priceNum.Div(ser.sizeSum)
	}

	first := ser.first
	agg := model.AggregatedTrade{
		Trader:      first.Trader,
		TraderName:  first.TraderName,
		Market:      first.Market,
		Side:        first.Side,
		Outcome:     first.Outcome,
		OutcomeStr:  first.OutcomeStr,
		Title:       first.Title,
		EventSlug:   first.EventSlug,
		ValueUSD:    ser.usdSum,
		AvgPrice:    avgPrice,
		Size:        ser.sizeSum,
		Fills:       ser.fills,
		IsAggregate: true,
		FirstSeen:   first.Timestamp,
	}

	a.logger.Debug().
		Str("trader", first.Trader).
		Str("market", first.Market).
		Int("fills", ser.fills).
		Str("usd", ser.usdSum.StringFixed(2)).
		Msg("series crossed alert threshold")

	return agg, true
}

// Cleanup drops series idle past window+grace. It rate-limits itself to
// once per ten seconds so callers can invoke it every cycle.
func (a *Aggregator) Cleanup(now time.Time) {
	if now.Sub(a.lastCleanup) < 10*time.Second {
		return
	}
	a.lastCleanup = now

	idleLimit := a.opts.Window + a.opts.Grace
	for key, ser := range a.active {
		if now.Sub(ser.lastUpdate) > idleLimit {
			delete(a.active, key)
		}
	}
}

// ActiveSeries returns the number of live series.
func (a *Aggregator) ActiveSeries() int {
	return len(a.active)
}
