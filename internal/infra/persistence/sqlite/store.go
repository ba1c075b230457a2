// Package sqlite provides an embedded row store for local development. It
// creates the three claimdesk tables on first open, with claim_id unique in
// the context and workflow tables.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"claimdesk/internal/infra/persistence/sqlrows"
	"claimdesk/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.RowStore = (*Store)(nil)

const defaultPath = "claimdesk.db"

// timestampLayout matches the created_at column default, so stored text
// orders chronologically.
const timestampLayout = "2006-01-02T15:04:05.000Z"

var dialect = sqlrows.Dialect{
	Placeholder: func(int) string { return "?" },
	Quote:       func(name string) string { return `"` + name + `"` },
}

var bootstrap = []string{
	`CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		claim_number TEXT,
		patient_id TEXT,
		status TEXT,
		claim_description TEXT,
		created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS claim_contexts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		claim_id TEXT NOT NULL UNIQUE,
		context TEXT NOT NULL,
		created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`,
	`CREATE TABLE IF NOT EXISTS workflow (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		claim_id TEXT NOT NULL UNIQUE,
		context TEXT NOT NULL,
		analysis TEXT NOT NULL,
		markdown TEXT NOT NULL,
		created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`,
}

// Store runs row-store queries against a SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the SQLite file at path.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	for _, stmt := range bootstrap {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// Select runs q and returns every matching row.
func (s *Store) Select(ctx context.Context, q domain.Query) ([]domain.Row, error) {
	stmt, args, err := dialect.Select(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	return sqlrows.Scan(rows)
}

// Insert writes record into table and returns the stored row. Timestamps are
// stored as UTC text.
func (s *Store) Insert(ctx context.Context, table string, record domain.Row) ([]domain.Row, error) {
	stmt, args, err := dialect.Insert(table, normalizeTimes(record))
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify(table, err)
	}
	out, err := sqlrows.Scan(rows)
	if err != nil {
		return nil, classify(table, err)
	}
	return out, nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func normalizeTimes(record domain.Row) domain.Row {
	out := make(domain.Row, len(record))
	for col, value := range record {
		switch v := value.(type) {
		case time.Time:
			out[col] = v.UTC().Format(timestampLayout)
		case *time.Time:
			if v == nil {
				out[col] = nil
			} else {
				out[col] = v.UTC().Format(timestampLayout)
			}
		default:
			out[col] = value
		}
	}
	return out
}

func classify(table string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("insert %s: %w: %w", table, domain.ErrDuplicate, err)
	}
	return fmt.Errorf("insert %s: %w", table, err)
}
