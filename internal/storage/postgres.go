package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"polywhales/internal/config"
)

const (
	pgSchemaSQL = `CREATE TABLE IF NOT EXISTS seen_trades (
        trade_key TEXT PRIMARY KEY,
        seen_at   BIGINT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_seen_trades_seen_at ON seen_trades (seen_at);
    CREATE TABLE IF NOT EXISTS alerts (
        id          BIGSERIAL PRIMARY KEY,
        occurred_at BIGINT NOT NULL,
        trader      TEXT NOT NULL,
        trader_name TEXT NOT NULL DEFAULT '',
        title       TEXT NOT NULL DEFAULT '',
        event_slug  TEXT NOT NULL DEFAULT '',
        side        TEXT NOT NULL DEFAULT '',
        outcome     TEXT NOT NULL DEFAULT '',
        avg_price   TEXT NOT NULL,
        size        TEXT NOT NULL,
        value_usd   TEXT NOT NULL,
        fills       INTEGER NOT NULL,
        category    TEXT NOT NULL DEFAULT '',
        created_at  BIGINT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_alerts_occurred_at ON alerts (occurred_at);`

	pgInsertSeenSQL = `INSERT INTO seen_trades (trade_key, seen_at) VALUES ($1, $2)
    ON CONFLICT (trade_key) DO NOTHING;`

	pgHasSeenSQL = `SELECT 1 FROM seen_trades WHERE trade_key = $1;`

	pgDeleteSeenBeforeSQL = `DELETE FROM seen_trades WHERE seen_at < $1;`

	pgInsertAlertSQL = `INSERT INTO alerts (
        occurred_at, trader, trader_name, title, event_slug, side, outcome,
        avg_price, size, value_usd, fills, category, created_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    RETURNING id;`

	pgListRecentAlertsSQL = `SELECT
        id, occurred_at, trader, trader_name, title, event_slug, side, outcome,
        avg_price, size, value_usd, fills, category, created_at
    FROM alerts ORDER BY occurred_at DESC LIMIT $1;`

	pgListAlertsBetweenSQL = `SELECT
        id, occurred_at, trader, trader_name, title, event_slug, side, outcome,
        avg_price, size, value_usd, fills, category, created_at
    FROM alerts WHERE occurred_at >= $1 AND occurred_at < $2 ORDER BY occurred_at;`

	pgDeleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	pgCountAlertsSQL = `SELECT COUNT(*) FROM alerts;`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}

	return pool, nil
}

// PostgresStore persists dedup keys and alert history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSeenBatch records keys in one batched round trip; conflicts are
// ignored so the call is idempotent.
func (s *PostgresStore) InsertSeenBatch(ctx context.Context, keys []string, seenAt time.Time) error {
	if len(keys) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	at := seenAt.UTC().Unix()
	batch := &pgx.Batch{}
	for _, key := range keys {
		batch.Queue(pgInsertSeenSQL, key, at)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for range keys {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert seen key: %w", err)
		}
	}
	return nil
}

// HasSeen reports whether a key is present in the durable store.
func (s *PostgresStore) HasSeen(ctx context.Context, key string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	var one int
	err = pool.QueryRow(ctx, pgHasSeenSQL, key).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen key: %w", err)
	}
	return true, nil
}

// DeleteSeenBefore removes dedup records older than cutoff.
func (s *PostgresStore) DeleteSeenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, pgDeleteSeenBeforeSQL, cutoff.UTC().Unix())
	if execErr != nil {
		return 0, fmt.Errorf("delete seen before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertAlert persists an alert emission.
func (s *PostgresStore) InsertAlert(ctx context.Context, rec AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	createdAt := time.Now().UTC()
	row := pool.QueryRow(ctx, pgInsertAlertSQL,
		rec.OccurredAt.UTC().Unix(),
		rec.Trader,
		rec.TraderName,
		rec.Title,
		rec.EventSlug,
		rec.Side,
		rec.Outcome,
		rec.AvgPrice.String(),
		rec.Size.String(),
		rec.ValueUSD.String(),
		rec.Fills,
		rec.Category,
		createdAt.Unix(),
	)
	if err := row.Scan(&rec.ID); err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	rec.CreatedAt = createdAt
	return rec, nil
}

// ListRecentAlerts lists most recent alerts, newest first.
func (s *PostgresStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return scanPGAlerts(rows, limit)
}

// ListAlertsBetween lists alerts within [from, to), oldest first.
func (s *PostgresStore) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListAlertsBetweenSQL, from.UTC().Unix(), to.UTC().Unix())
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	defer rows.Close()

	return scanPGAlerts(rows, 0)
}

// DeleteAlertsBefore deletes historical alerts.
func (s *PostgresStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, pgDeleteAlertsBeforeSQL, olderThan.UTC().Unix()); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// CountAlerts counts stored alerts.
func (s *PostgresStore) CountAlerts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, pgCountAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts: %w", scanErr)
	}
	return count, nil
}

func scanPGAlerts(rows pgx.Rows, sizeHint int) ([]AlertRecord, error) {
	alerts := make([]AlertRecord, 0, sizeHint)
	for rows.Next() {
		var (
			rec         AlertRecord
			occurredAt  int64
			avgPriceStr string
			sizeStr     string
			valueStr    string
			createdAt   int64
		)
		if err := rows.Scan(
			&rec.ID,
			&occurredAt,
			&rec.Trader,
			&rec.TraderName,
			&rec.Title,
			&rec.EventSlug,
			&rec.Side,
			&rec.Outcome,
			&avgPriceStr,
			&sizeStr,
			&valueStr,
			&rec.Fills,
			&rec.Category,
			&createdAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.AvgPrice, convErr = decimal.NewFromString(avgPriceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse avg price: %w", convErr)
		}
		rec.Size, convErr = decimal.NewFromString(sizeStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse size: %w", convErr)
		}
		rec.ValueUSD, convErr = decimal.NewFromString(valueStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse value usd: %w", convErr)
		}

		rec.OccurredAt = time.Unix(occurredAt, 0).UTC()
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

var _ Store = (*PostgresStore)(nil)
