package dedup

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"polywhales/internal/storage"
)

// Options tune the dedup store.
type Options struct {
	CacheSize     int           // recency cache capacity
	RetentionTTL  time.Duration // durable record lifetime
	SweepInterval time.Duration // minimum spacing between TTL sweeps
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		CacheSize:     10_000,
		RetentionTTL:  72 * time.Hour,
		SweepInterval: time.Hour,
	}
}

// Store remembers which trade identities have already been processed.
// A bounded LRU cache answers the common case (the same fill seen again
// within seconds under overlapping pagination windows); the durable
// store is the correctness backstop across restarts and cache eviction.
//
// Not safe for concurrent use; the poll loop is the sole owner.
type Store struct {
	opts      Options
	durable   storage.DedupStore
	cache     *lru.Cache[string, struct{}]
	pending   []string
	lastSweep time.Time
	logger    zerolog.Logger
}

// New constructs a dedup store over a durable backend.
func New(opts Options, durable storage.DedupStore, logger zerolog.Logger) (*Store, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultOptions().CacheSize
	}
	if opts.RetentionTTL <= 0 {
		opts.RetentionTTL = DefaultOptions().RetentionTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultOptions().SweepInterval
	}

	cache, err := lru.New[string, struct{}](opts.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Store{
		opts:    opts,
		durable: durable,
		cache:   cache,
		logger:  logger.With().Str("component", "dedup").Logger(),
	}, nil
}

// IsSeen reports whether the key was processed before. A durable hit is
// promoted into the recency cache. A durable lookup error is treated as
// unseen: a false negative only risks a duplicate alert, while a false
// positive would silently drop a real trade.
func (s *Store) IsSeen(ctx context.Context, key string) bool {
	if _, ok := s.cache.Get(key); ok {
		return true
	}

	seen, err := s.durable.HasSeen(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("durable dedup lookup failed, treating as unseen")
		return false
	}
	if seen {
		s.cache.Add(key, struct{}{})
	}
	return seen
}

// Remember marks a key seen in the recency cache and queues it for the
// next durable flush.
func (s *Store) Remember(key string) {
	s.cache.Add(key, struct{}{})
	s.pending = append(s.pending, key)
}

// Flush persists all queued keys in one durable batch. On failure the
// keys remain in the recency cache, so re-alerting within this process
// is still prevented; durability for the batch is lost, which is the
// accepted degraded mode.
func (s *Store) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	err := s.durable.InsertSeenBatch(ctx, s.pending, time.Now().UTC())
	count := len(s.pending)
	s.pending = s.pending[:0]
	if err != nil {
		s.logger.Error().Err(err).Int("keys", count).Msg("durable dedup flush failed")
		return err
	}

	s.logger.Debug().Int("keys", count).Msg("flushed dedup batch")
	return nil
}

// Sweep deletes durable records past the retention TTL. It rate-limits
// itself and is meant to be invoked opportunistically at the end of a
// poll cycle rather than from a dedicated timer.
func (s *Store) Sweep(ctx context.Context, now time.Time) {
	if now.Sub(s.lastSweep) < s.opts.SweepInterval {
		return
	}
	s.lastSweep = now

	cutoff := now.Add(-s.opts.RetentionTTL)
	deleted, err := s.durable.DeleteSeenBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("dedup ttl sweep failed")
		return
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("swept expired dedup records")
	}
}

// CacheLen returns the number of keys currently in the recency cache.
func (s *Store) CacheLen() int {
	return s.cache.Len()
}

// PendingLen returns the number of keys queued for the next flush.
func (s *Store) PendingLen() int {
	return len(s.pending)
}
