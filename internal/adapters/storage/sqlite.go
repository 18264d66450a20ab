package storage

// sqlite.go: durable home of the rolling statistics tracker.
//
// Layout:
//   - `daily_stats`: one row per calendar-day ordinal (UPSERT). Bounded
//     to the retention window on every write, so the table never grows
//     past the in-memory history.
//   - `advisory`: single-row table with the last advisory action and the
//     date it changed.
//
// The engine reloads the whole series at startup and upserts the current
// day after every update cycle.

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/ladderbot/internal/domain"
	"github.com/alejandrodnm/ladderbot/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_stats (
    day            INTEGER PRIMARY KEY,
    margin_balance REAL NOT NULL DEFAULT 0,
    price          REAL NOT NULL DEFAULT 0,
    rate           REAL NOT NULL DEFAULT 0,
    count          INTEGER NOT NULL DEFAULT 0,
    change_24      REAL,
    change_48      REAL
);

CREATE TABLE IF NOT EXISTS advisory (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    action     TEXT NOT NULL,
    changed_at DATETIME NOT NULL,
    text       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_daily_stats_day ON daily_stats(day DESC);
`

// SQLiteStorage implements ports.StatsStorage using SQLite (pure Go, no CGo).
type SQLiteStorage struct {
	db *sql.DB
}

var _ ports.StatsStorage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the database at the given path and
// applies the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// LoadHistory rebuilds the bounded day series from disk, oldest first.
func (s *SQLiteStorage) LoadHistory(ctx context.Context) (*domain.History, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, margin_balance, price, rate, count, change_24, change_48
		FROM daily_stats
		ORDER BY day ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadHistory: query: %w", err)
	}
	defer rows.Close()

	var records []domain.DailyRecord
	for rows.Next() {
		var rec domain.DailyRecord
		var c24, c48 sql.NullFloat64
		if err := rows.Scan(&rec.Day, &rec.MarginBalance, &rec.Price, &rec.Rate, &rec.Count, &c24, &c48); err != nil {
			return nil, fmt.Errorf("storage.LoadHistory: scan row: %w", err)
		}
		if c24.Valid {
			v := c24.Float64
			rec.Change24 = &v
		}
		if c48.Valid {
			v := c48.Float64
			rec.Change48 = &v
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.LoadHistory: rows: %w", err)
	}
	return domain.NewHistory(records), nil
}

// SaveDay upserts a daily record and evicts days beyond the retention
// window, keeping the table aligned with the in-memory history.
func (s *SQLiteStorage) SaveDay(ctx context.Context, rec domain.DailyRecord) error {
	var c24, c48 any
	if rec.Change24 != nil {
		c24 = *rec.Change24
	}
	if rec.Change48 != nil {
		c48 = *rec.Change48
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (day, margin_balance, price, rate, count, change_24, change_48)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			margin_balance = excluded.margin_balance,
			price          = excluded.price,
			rate           = excluded.rate,
			count          = excluded.count,
			change_24      = excluded.change_24,
			change_48      = excluded.change_48
	`, rec.Day, rec.MarginBalance, rec.Price, rec.Rate, rec.Count, c24, c48); err != nil {
		return fmt.Errorf("storage.SaveDay: upsert day %d: %w", rec.Day, err)
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM daily_stats
		WHERE day NOT IN (SELECT day FROM daily_stats ORDER BY day DESC LIMIT ?)
	`, domain.MaxHistoryDays); err != nil {
		return fmt.Errorf("storage.SaveDay: prune: %w", err)
	}
	return nil
}

// SaveAdvisory persists the single-row advisory state.
func (s *SQLiteStorage) SaveAdvisory(ctx context.Context, adv domain.Advisory) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO advisory (id, action, changed_at, text)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			action     = excluded.action,
			changed_at = excluded.changed_at,
			text       = excluded.text
	`, string(adv.Action), adv.ChangedAt.UTC(), adv.Text); err != nil {
		return fmt.Errorf("storage.SaveAdvisory: upsert: %w", err)
	}
	return nil
}

// LoadAdvisory returns the persisted advisory state if one exists.
func (s *SQLiteStorage) LoadAdvisory(ctx context.Context) (domain.Advisory, bool, error) {
	var adv domain.Advisory
	var action string
	err := s.db.QueryRowContext(ctx,
		`SELECT action, changed_at, text FROM advisory WHERE id = 1`,
	).Scan(&action, &adv.ChangedAt, &adv.Text)
	if err == sql.ErrNoRows {
		return domain.Advisory{}, false, nil
	}
	if err != nil {
		return domain.Advisory{}, false, fmt.Errorf("storage.LoadAdvisory: query: %w", err)
	}
	adv.Action = domain.AdvisoryAction(action)
	return adv, true, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
