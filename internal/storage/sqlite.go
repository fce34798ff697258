package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS seen_trades (
    trade_key TEXT PRIMARY KEY,
    seen_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_trades_seen_at ON seen_trades (seen_at);
CREATE TABLE IF NOT EXISTS alerts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    occurred_at INTEGER NOT NULL,
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
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_occurred_at ON alerts (occurred_at);
`

// SQLiteStore persists dedup keys and alert history in a local SQLite
// file. WAL journaling with relaxed fsync gives power-failure-safe
// appends without paying a full fsync per cycle; losing the tail of a
// batch only risks a duplicate alert, never a dropped trade.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = "polywhales.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Single logical writer; concurrent access only happens during tests.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger.With().Str("component", "sqlite_store").Logger()}

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		s.logger.Warn().Err(err).Msg("failed to set WAL mode")
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		s.logger.Warn().Err(err).Msg("failed to set synchronous mode")
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// InsertSeenBatch records keys in a single transaction, ignoring keys
// that are already present.
func (s *SQLiteStore) InsertSeenBatch(ctx context.Context, keys []string, seenAt time.Time) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seen batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO seen_trades (trade_key, seen_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare seen insert: %w", err)
	}
	defer stmt.Close()

	at := seenAt.UTC().Unix()
	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, key, at); err != nil {
			return fmt.Errorf("insert seen key: %w", err)
		}
	}

	return tx.Commit()
}

// HasSeen reports whether a key is present in the durable store.
func (s *SQLiteStore) HasSeen(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM seen_trades WHERE trade_key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen key: %w", err)
	}
	return true, nil
}

// DeleteSeenBefore removes dedup records older than cutoff and returns
// the number deleted.
func (s *SQLiteStore) DeleteSeenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM seen_trades WHERE seen_at < ?`, cutoff.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("delete seen before: %w", err)
	}
	return res.RowsAffected()
}

// InsertAlert persists an alert emission.
func (s *SQLiteStore) InsertAlert(ctx context.Context, rec AlertRecord) (AlertRecord, error) {
	createdAt := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO alerts (
        occurred_at, trader, trader_name, title, event_slug, side, outcome,
        avg_price, size, value_usd, fills, category, created_at
    ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
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
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return AlertRecord{}, fmt.Errorf("alert insert id: %w", err)
	}

	rec.ID = id
	rec.CreatedAt = createdAt
	return rec, nil
}

// ListRecentAlerts lists most recent alerts, newest first.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
        id, occurred_at, trader, trader_name, title, event_slug, side, outcome,
        avg_price, size, value_usd, fills, category, created_at
    FROM alerts ORDER BY occurred_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	return scanSQLiteAlerts(rows, limit)
}

// ListAlertsBetween lists alerts within [from, to), oldest first.
func (s *SQLiteStore) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
        id, occurred_at, trader, trader_name, title, event_slug, side, outcome,
        avg_price, size, value_usd, fills, category, created_at
    FROM alerts WHERE occurred_at >= ? AND occurred_at < ? ORDER BY occurred_at`,
		from.UTC().Unix(), to.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("list alerts between: %w", err)
	}
	defer rows.Close()

	return scanSQLiteAlerts(rows, 0)
}

// DeleteAlertsBefore deletes historical alerts.
func (s *SQLiteStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, olderThan.UTC().Unix()); err != nil {
		return fmt.Errorf("delete alerts before: %w", err)
	}
	return nil
}

// CountAlerts counts stored alerts.
func (s *SQLiteStore) CountAlerts(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return count, nil
}

func scanSQLiteAlerts(rows *sql.Rows, sizeHint int) ([]AlertRecord, error) {
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

var _ Store = (*SQLiteStore)(nil)
