// Package ledger keeps a local, append-only history of finalized picks in
// SQLite. It is an audit trail only: Bling stays the source of truth for
// stock.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// DefaultLimit is the number of picks Recent returns when limit <= 0.
const DefaultLimit = 20

const (
	sqlInsertPick = `INSERT INTO picks
		(id, order_number, order_id, finished_at, forced, items)
		VALUES (?, ?, ?, ?, ?, ?)`

	sqlRecentPicks = `SELECT id, order_number, order_id, finished_at, forced, items
		FROM picks ORDER BY finished_at DESC, rowid DESC LIMIT ?`

	sqlPicksByOrder = `SELECT id, order_number, order_id, finished_at, forced, items
		FROM picks WHERE order_number = ? ORDER BY finished_at DESC, rowid DESC`
)

// Item is the per-product outcome of a pick.
type Item struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Ordered   int    `json:"ordered"`
	Scanned   int    `json:"scanned"`
}

// Pick is one finalized order. Forced is true when the order was finalized
// with items still missing.
type Pick struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"orderNumber"`
	OrderID     string    `json:"orderId"`
	FinishedAt  time.Time `json:"finishedAt"`
	Forced      bool      `json:"forced"`
	Items       []Item    `json:"items"`
}

// Store is the pick history database. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the database at dbPath and runs
// migrations. dbPath may be ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
			dbPath,
		)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database %s: %w", dbPath, err)
	}

	// One connection: keeps ":memory:" a single database and serializes writes.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("ledger opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Record appends a pick. A missing ID is filled with a fresh UUID and a
// zero FinishedAt with the current time. The stored pick is returned.
func (s *Store) Record(ctx context.Context, p Pick) (Pick, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	if p.FinishedAt.IsZero() {
		p.FinishedAt = s.nowFunc()
	}

	if p.Items == nil {
		p.Items = []Item{}
	}

	items, err := json.Marshal(p.Items)
	if err != nil {
		return Pick{}, fmt.Errorf("ledger: encoding items of order %s: %w", p.OrderNumber, err)
	}

	_, err = s.db.ExecContext(ctx, sqlInsertPick,
		p.ID, p.OrderNumber, p.OrderID, p.FinishedAt.UnixMilli(), boolToInt(p.Forced), string(items))
	if err != nil {
		return Pick{}, fmt.Errorf("ledger: recording order %s: %w", p.OrderNumber, err)
	}

	s.logger.Debug("pick recorded",
		slog.String("id", p.ID),
		slog.String("order", p.OrderNumber),
		slog.Bool("forced", p.Forced),
	)

	return p, nil
}

// Recent returns up to limit picks, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Pick, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, sqlRecentPicks, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing picks: %w", err)
	}
	defer rows.Close()

	return scanPicks(rows)
}

// ByOrder returns every pick recorded for an order number, newest first.
func (s *Store) ByOrder(ctx context.Context, number string) ([]Pick, error) {
	rows, err := s.db.QueryContext(ctx, sqlPicksByOrder, number)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing picks of order %s: %w", number, err)
	}
	defer rows.Close()

	return scanPicks(rows)
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanPicks(rows *sql.Rows) ([]Pick, error) {
	picks := []Pick{}

	for rows.Next() {
		var (
			p          Pick
			finishedAt int64
			forced     int
			items      string
		)

		if err := rows.Scan(&p.ID, &p.OrderNumber, &p.OrderID, &finishedAt, &forced, &items); err != nil {
			return nil, fmt.Errorf("ledger: scanning pick row: %w", err)
		}

		if err := json.Unmarshal([]byte(items), &p.Items); err != nil {
			return nil, fmt.Errorf("ledger: decoding items of pick %s: %w", p.ID, err)
		}

		p.FinishedAt = time.UnixMilli(finishedAt)
		p.Forced = forced != 0
		picks = append(picks, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating pick rows: %w", err)
	}

	return picks, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
