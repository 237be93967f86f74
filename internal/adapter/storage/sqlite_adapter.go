package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rl1809/mini-storefront/internal/core/domain"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS slots (
		name       TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency (
		key        TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL,
		total       TEXT NOT NULL,
		card_suffix TEXT NOT NULL,
		status      TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_session ON orders (session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id   TEXT NOT NULL,
		position   INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		title      TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		quantity   INTEGER NOT NULL,
		line_total TEXT NOT NULL,
		PRIMARY KEY (order_id, position)
	)`,
}

// SQLiteAdapter keeps cart slots, idempotency keys and orders in a single
// local database file. It is the local-mode counterpart of the Redis and
// MySQL adapters.
type SQLiteAdapter struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection serializes writers and keeps :memory: databases whole
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}

	return &SQLiteAdapter{db: db, now: time.Now}, nil
}

func (s *SQLiteAdapter) Close() error {
	return s.db.Close()
}

func (s *SQLiteAdapter) LoadSlot(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query slot: %w", err)
	}
	return data, nil
}

func (s *SQLiteAdapter) StoreSlot(ctx context.Context, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, data, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store slot: %w", err)
	}
	return nil
}

// SetIdempotency claims key. A claim older than the idempotency TTL may be
// taken again.
func (s *SQLiteAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	now := s.now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency (key, created_at) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET created_at = excluded.created_at
		WHERE idempotency.created_at < ?`,
		key, now.UnixNano(), now.Add(-idempotencyKeyTTL).UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("set idempotency: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (s *SQLiteAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM idempotency WHERE key = ?`, key); err != nil {
		return fmt.Errorf("release idempotency: %w", err)
	}
	return nil
}

func (s *SQLiteAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO orders (id, session_id, total, card_suffix, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.SessionID, order.Total.String(), order.CardSuffix, string(order.Status),
		order.CreatedAt.UnixNano(), order.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrDuplicateOrder
	}

	for i, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, position, product_id, title, unit_price, quantity, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			order.ID, i, line.ProductID, line.Title, line.UnitPrice.String(), line.Quantity, line.LineTotal.String(),
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, total, card_suffix, status, created_at, updated_at
		FROM orders WHERE id = ?`, orderID)

	o, err := scanSQLiteOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	o.Lines, err = s.lines(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *SQLiteAdapter) ListOrders(ctx context.Context, sessionID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, total, card_suffix, status, created_at, updated_at
		FROM orders WHERE session_id = ? ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	var orders []domain.Order
	for rows.Next() {
		o, err := scanSQLiteOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	// lines are read after the order cursor is closed: the pool has a
	// single connection
	for i := range orders {
		orders[i].Lines, err = s.lines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *SQLiteAdapter) lines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, title, unit_price, quantity, line_total
		FROM order_lines WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ProductID, &l.Title, &l.UnitPrice, &l.Quantity, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteOrder(row rowScanner) (domain.Order, error) {
	var (
		o                    domain.Order
		status               string
		createdAt, updatedAt int64
	)
	err := row.Scan(&o.ID, &o.SessionID, &o.Total, &o.CardSuffix, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return o, err
		}
		return o, fmt.Errorf("scan order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = time.Unix(0, createdAt).UTC()
	o.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return o, nil
}
