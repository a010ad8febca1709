// Package store provides the durable SQLite-backed price store and the
// portfolio repository.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrStockNotFound is returned when a stock id has no row.
var ErrStockNotFound = errors.New("store: stock not found")

// DB wraps the SQLite connection shared by the price store and the
// portfolio repository.
type DB struct {
	conn *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS stocks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      INTEGER NOT NULL,
	symbol       TEXT    NOT NULL,
	name         TEXT,
	currency     TEXT    NOT NULL DEFAULT 'USD',
	quantity     REAL    NOT NULL DEFAULT 0,
	average_cost REAL    NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_stocks_user ON stocks(user_id);

CREATE TABLE IF NOT EXISTS price_bars (
	stock_id       INTEGER NOT NULL,
	date           TEXT    NOT NULL,
	open           REAL    NOT NULL,
	high           REAL    NOT NULL,
	low            REAL    NOT NULL,
	close          REAL    NOT NULL,
	adjusted_close REAL    NOT NULL,
	volume         INTEGER,
	PRIMARY KEY (stock_id, date)
);

CREATE TABLE IF NOT EXISTS transactions (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id  INTEGER NOT NULL,
	stock_id INTEGER NOT NULL,
	symbol   TEXT    NOT NULL,
	type     TEXT    NOT NULL CHECK (type IN ('buy', 'sell')),
	quantity REAL    NOT NULL,
	price    REAL    NOT NULL,
	date     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_symbol ON transactions(user_id, symbol);

CREATE TABLE IF NOT EXISTS cash_balances (
	user_id  INTEGER NOT NULL,
	currency TEXT    NOT NULL,
	amount   REAL    NOT NULL,
	PRIMARY KEY (user_id, currency)
);
`

// Open opens (creating if needed) the SQLite database at path and
// ensures the schema exists.
func Open(path string) (*DB, error) {
	if !strings.HasPrefix(path, "file:") {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path = "file:" + absPath
	}

	connStr := path + "?" + connParams().Encode()
	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under the write-back goroutines.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

func connParams() url.Values {
	params := url.Values{}
	params.Set("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(ON)")
	return params
}

// Conn exposes the underlying connection to the repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
