// Package db owns the SQLite handle backing users, orders, trades, audit
// entries and encrypted venue credentials.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Database wraps the SQL handle for easier swapping/testing.
type Database struct {
	DB *sql.DB
}

// New opens the SQLite database at path, creating the file and its parent
// directory on first use.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	handle, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer: SQLite serializes writes anyway, and one connection
	// sidesteps SQLITE_BUSY between our own goroutines.
	handle.SetMaxOpenConns(1)
	handle.SetConnMaxLifetime(time.Hour)

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Database{DB: handle}, nil
}

// dsn appends the pragmas every connection needs. The busy timeout keeps a
// reopened handle from failing fast while WAL checkpointing holds the file.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	return path + "?" + q.Encode()
}

// Close releases the underlying DB handle.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
