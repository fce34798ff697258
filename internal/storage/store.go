package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"polywhales/internal/config"
)

var (
	// ErrNotConfigured indicates the store was not initialised.
	ErrNotConfigured = errors.New("storage: store not configured")
)

// DedupStore is the durable backstop behind the in-memory recency cache.
// Inserts are idempotent; a key already present is silently ignored.
type DedupStore interface {
	InsertSeenBatch(ctx context.Context, keys []string, seenAt time.Time) error
	HasSeen(ctx context.Context, key string) (bool, error)
	DeleteSeenBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, rec AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
	CountAlerts(ctx context.Context) (int64, error)
}

// Store aggregates durable dedup state and alert history.
type Store interface {
	DedupStore
	AlertStore
	Close()
}

// Open selects a backend from config: a PostgreSQL DSN when configured,
// otherwise a local SQLite file.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (Store, error) {
	if cfg.DSN != "" {
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	}
	return NewSQLiteStore(cfg.Path, logger)
}
