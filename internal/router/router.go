package router

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"polywhales/internal/alerting"
	"polywhales/internal/category"
	"polywhales/internal/model"
	"polywhales/internal/storage"
)

// Subscriber is one alert recipient with individually configured
// filters. The router reads these; it never mutates them.
type Subscriber struct {
	ChatID     string
	MinUSD     decimal.Decimal
	Categories map[string]bool // "all", "crypto", "sports", "other"
	ProbMin    decimal.Decimal // inclusive; zero means no lower bound
	ProbMax    decimal.Decimal // inclusive; zero means no probability filter
	Active     bool
	Language   string
}

// SubscriberSource supplies the current subscriber set. Settings
// persistence lives behind this boundary.
type SubscriberSource interface {
	Subscribers() []Subscriber
}

// StaticSubscribers is a fixed, config-loaded subscriber source.
type StaticSubscribers []Subscriber

// Subscribers returns the fixed set.
func (s StaticSubscribers) Subscribers() []Subscriber {
	return s
}

// Options tune the dispatch worker.
type Options struct {
	QueueSize   int           // bounded handoff queue between poller and dispatch
	SendTimeout time.Duration // per-message delivery timeout
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		QueueSize:   256,
		SendTimeout: 10 * time.Second,
	}
}

// Router fans triggered aggregates out to subscribers. Dispatch runs on
// its own goroutine behind a bounded queue so a slow transport can never
// stall ingestion; when the queue is full the oldest alert is dropped.
type Router struct {
	opts       Options
	subs       SubscriberSource
	classifier category.Classifier
	notifier   alerting.Notifier
	audit      storage.AlertStore
	logger     zerolog.Logger

	queue   chan model.AggregatedTrade
	dropped int64
	mu      sync.Mutex
	wg      sync.WaitGroup
	started bool
}

// New constructs a Router. audit may be nil when persistence is not
// configured.
func New(opts Options, subs SubscriberSource, classifier category.Classifier, notifier alerting.Notifier, audit storage.AlertStore, logger zerolog.Logger) *Router {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultOptions().SendTimeout
	}

	return &Router{
		opts:       opts,
		subs:       subs,
		classifier: classifier,
		notifier:   notifier,
		audit:      audit,
		logger:     logger.With().Str("component", "router").Logger(),
		queue:      make(chan model.AggregatedTrade, opts.QueueSize),
	}
}

// Start launches the dispatch worker. The worker exits once the queue is
// closed and drained, or when ctx is cancelled.
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case agg, ok := <-r.queue:
				if !ok {
					return
				}
				r.dispatch(ctx, agg)
			}
		}
	}()
}

// Enqueue hands one aggregate to the dispatch worker without blocking.
// Only a value snapshot crosses the goroutine boundary. When the queue
// is full the oldest entry is dropped to make room.
func (r *Router) Enqueue(agg model.AggregatedTrade) {
	for {
		select {
		case r.queue <- agg:
			return
		default:
		}
		select {
		case old := <-r.queue:
			r.mu.Lock()
			r.dropped++
			r.mu.Unlock()
			r.logger.Warn().
				Str("market", old.Market).
				Str("usd", old.ValueUSD.StringFixed(0)).
				Msg("dispatch queue full, dropped oldest alert")
		default:
		}
	}
}

// Close stops accepting alerts and waits for the worker to drain.
func (r *Router) Close() {
	r.mu.Lock()
	started := r.started
	r.started = false
	r.mu.Unlock()

	close(r.queue)
	if started {
		r.wg.Wait()
	}
}

// Dropped returns the number of alerts discarded due to backpressure.
func (r *Router) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// dispatch classifies, audits, and delivers one aggregate. Failures are
// isolated per subscriber.
func (r *Router) dispatch(ctx context.Context, agg model.AggregatedTrade) {
	cat := category.Other
	if r.classifier != nil {
		cat = r.classifier.Classify(agg.Title, agg.EventSlug)
	}

	if r.audit != nil {
		rec := storage.AlertRecord{
			OccurredAt: time.Unix(agg.FirstSeen, 0).UTC(),
			Trader:     agg.Trader,
			TraderName: agg.TraderName,
			Title:      agg.Title,
			EventSlug:  agg.EventSlug,
			Side:       agg.Side,
			Outcome:    agg.OutcomeStr,
			AvgPrice:   agg.AvgPrice,
			Size:       agg.Size,
			ValueUSD:   agg.ValueUSD,
			Fills:      agg.Fills,
			Category:   cat,
		}
		if _, err := r.audit.InsertAlert(ctx, rec); err != nil {
			r.logger.Error().Err(err).Msg("failed to persist alert record")
		}
	}

	if r.notifier == nil || r.subs == nil {
		return
	}

	for _, sub := range r.subs.Subscribers() {
		if !r.matches(sub, agg, cat) {
			continue
		}

		text := alerting.RenderMessage(agg, cat, sub.Language)

		sendCtx, cancel := context.WithTimeout(ctx, r.opts.SendTimeout)
		err := r.notifier.Send(sendCtx, sub.ChatID, text)
		cancel()
		if err != nil {
			r.logger.Warn().Err(err).Str("chat_id", sub.ChatID).Msg("alert delivery failed")
			continue
		}
	}
}

// matches applies a subscriber's threshold, category, and probability
// filters.
func (r *Router) matches(sub Subscriber, agg model.AggregatedTrade, cat string) bool {
	if !sub.Active {
		return false
	}
	if agg.ValueUSD.LessThan(sub.MinUSD) {
		return false
	}
	if len(sub.Categories) > 0 && !sub.Categories["all"] && !sub.Categories[cat] {
		return false
	}
	if sub.ProbMax.IsPositive() {
		if agg.AvgPrice.LessThan(sub.ProbMin) || agg.AvgPrice.GreaterThan(sub.ProbMax) {
			return false
		}
	}
	return true
}
