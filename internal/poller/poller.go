package poller

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"polywhales/internal/aggregator"
	"polywhales/internal/dedup"
	"polywhales/internal/fetcher"
	"polywhales/internal/model"
)

// degradedThreshold is the consecutive-failure count past which the
// poller reports itself unhealthy. Polling continues regardless; the
// next interval is the retry.
const degradedThreshold = 3

// AlertFunc receives one AggregatedTrade per triggered series.
type AlertFunc func(model.AggregatedTrade)

// Options tune the poll loop.
type Options struct {
	Interval   time.Duration // polling cadence, also the implicit retry backoff
	PageLimit  int           // fills requested per page
	MaxPages   int           // bounds worst-case work per cycle
	StatsEvery int           // cycles between stats log lines
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Interval:   5 * time.Second,
		PageLimit:  500,
		MaxPages:   5,
		StatsEvery: 60,
	}
}

// Stats is a read-only snapshot of poller health.
type Stats struct {
	TotalProcessed    int64
	CacheSize         int
	PendingKeys       int
	ActiveSeries      int
	LastTimestamp     int64
	ConsecutiveErrors int
	Degraded          bool
}

// Poller drives the fetch → dedup → aggregate → alert loop. All pipeline
// state is owned by the loop's goroutine; no two cycles ever run
// concurrently.
type Poller struct {
	opts    Options
	fetcher fetcher.TradeFetcher
	seen    *dedup.Store
	agg     *aggregator.Aggregator
	onAlert AlertFunc
	logger  zerolog.Logger

	lastSeenTS        int64
	totalProcessed    int64
	consecutiveErrors int
	cycles            int64

	statsMu sync.Mutex
	stats   Stats
}

// New constructs a Poller. onAlert must not block for long; hand slow
// dispatch off to a worker.
func New(opts Options, f fetcher.TradeFetcher, seen *dedup.Store, agg *aggregator.Aggregator, onAlert AlertFunc, logger zerolog.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions().Interval
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = DefaultOptions().PageLimit
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultOptions().MaxPages
	}
	if opts.StatsEvery <= 0 {
		opts.StatsEvery = DefaultOptions().StatsEvery
	}

	return &Poller{
		opts:    opts,
		fetcher: f,
		seen:    seen,
		agg:     agg,
		onAlert: onAlert,
		logger:  logger.With().Str("component", "poller").Logger(),
	}
}

// Run blocks, executing poll cycles until ctx is cancelled. A failed
// cycle is logged and retried at the next interval; nothing short of
// cancellation stops the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().
		Dur("interval", p.opts.Interval).
		Int("page_limit", p.opts.PageLimit).
		Int("max_pages", p.opts.MaxPages).
		Msg("starting trade poll loop")

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// RunCycle executes a single poll cycle. Exposed for replay tooling and
// tests; production code goes through Run.
func (p *Poller) RunCycle(ctx context.Context) {
	p.runCycle(ctx)
}

func (p *Poller) runCycle(ctx context.Context) {
	now := time.Now().UTC()
	prevHighWater := p.lastSeenTS

	newTrades := 0
	fetchFailed := false

	for page := 0; page < p.opts.MaxPages; page++ {
		offset := page * p.opts.PageLimit

		trades, err := p.fetcher.Fetch(ctx, p.opts.PageLimit, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn().Err(err).Int("page", page).Msg("fetch failed")
			fetchFailed = true
			break
		}
		if len(trades) == 0 {
			break
		}

		// The source delivers newest-first; deterministic ascending order
		// is required for high-water-mark tracking and accumulation order.
		sort.SliceStable(trades, func(i, j int) bool {
			return trades[i].Timestamp < trades[j].Timestamp
		})

		newTrades += p.processPage(ctx, trades)

		oldest := trades[0].Timestamp
		newest := trades[len(trades)-1].Timestamp
		if newest > p.lastSeenTS {
			p.lastSeenTS = newest
		}

		// Gap check: if even the oldest fill in this page is newer than
		// the high-water mark from before this cycle, fills between the
		// two may have slid out of the upstream window. Page deeper.
		if prevHighWater > 0 && oldest > prevHighWater {
			p.logger.Debug().
				Int64("oldest", oldest).
				Int64("high_water", prevHighWater).
				Int("next_offset", offset+p.opts.PageLimit).
				Msg("pagination gap suspected, fetching deeper")
			continue
		}
		break
	}

	if fetchFailed {
		p.consecutiveErrors++
		if p.consecutiveErrors == degradedThreshold {
			p.logger.Error().Int("consecutive_errors", p.consecutiveErrors).Msg("poller degraded")
		}
	} else {
		p.consecutiveErrors = 0
	}

	// One durable write per cycle. Failure leaves the recency cache as
	// the only guard, which is the accepted degraded mode.
	if err := p.seen.Flush(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn().Err(err).Msg("dedup flush failed for cycle")
	}

	p.agg.Cleanup(now)
	p.seen.Sweep(ctx, now)

	p.cycles++
	p.publishStats()

	if newTrades > 0 {
		p.logger.Debug().Int("new_trades", newTrades).Msg("cycle complete")
	}
	if p.cycles%int64(p.opts.StatsEvery) == 0 {
		s := p.Stats()
		p.logger.Info().
			Int64("total_processed", s.TotalProcessed).
			Int("cache_size", s.CacheSize).
			Int("active_series", s.ActiveSeries).
			Int64("last_timestamp", s.LastTimestamp).
			Int("consecutive_errors", s.ConsecutiveErrors).
			Msg("poller stats")
	}
}

// processPage runs dedup and aggregation over one ascending-sorted page
// and returns the number of previously unseen fills.
func (p *Poller) processPage(ctx context.Context, trades []model.RawTrade) int {
	processed := 0
	now := time.Now().UTC()

	for _, trade := range trades {
		key := trade.Key()
		if p.seen.IsSeen(ctx, key) {
			continue
		}
		p.seen.Remember(key)
		p.totalProcessed++
		processed++

		if agg, fire := p.agg.Process(trade, now); fire && p.onAlert != nil {
			p.onAlert(agg)
		}
	}
	return processed
}

func (p *Poller) publishStats() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats = Stats{
		TotalProcessed:    p.totalProcessed,
		CacheSize:         p.seen.CacheLen(),
		PendingKeys:       p.seen.PendingLen(),
		ActiveSeries:      p.agg.ActiveSeries(),
		LastTimestamp:     p.lastSeenTS,
		ConsecutiveErrors: p.consecutiveErrors,
		Degraded:          p.consecutiveErrors >= degradedThreshold,
	}
}

// Stats returns the snapshot published at the end of the last cycle.
// Safe to call from any goroutine.
func (p *Poller) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}
