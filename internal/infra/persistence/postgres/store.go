// Package postgres provides the row store backed by the hosted PostgreSQL
// database. It issues plain SELECT and INSERT statements and never alters the
// schema.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"claimdesk/internal/infra/persistence/sqlrows"
	"claimdesk/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.RowStore = (*Store)(nil)

const uniqueViolation = "23505"

var (
	openDB = func(cfg pgx.ConnConfig) *sql.DB { return stdlib.OpenDB(cfg) }
	openMu sync.Mutex
)

var dialect = sqlrows.Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	Quote:       func(name string) string { return pgx.Identifier{name}.Sanitize() },
}

// Config holds the connection parameters for the hosted database.
type Config struct {
	// URL is a postgres:// connection URL naming host, port, database and user.
	URL string
	// Key is the access key; it replaces any password embedded in URL.
	Key string
	// MaxOpenConns caps the pool size when positive.
	MaxOpenConns int
}

// Store runs row-store queries against PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore parses cfg, opens a pool and verifies connectivity.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres url required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("postgres access key required")
	}
	connCfg, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	connCfg.Password = cfg.Key

	openMu.Lock()
	db := openDB(*connCfg)
	openMu.Unlock()
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
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

// Insert writes record into table and returns the stored row. Unique
// violations are reported as domain.ErrDuplicate.
func (s *Store) Insert(ctx context.Context, table string, record domain.Row) ([]domain.Row, error) {
	stmt, args, err := dialect.Insert(table, record)
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

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func classify(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("insert %s: %w: %w", table, domain.ErrDuplicate, err)
	}
	return fmt.Errorf("insert %s: %w", table, err)
}

// OverrideOpenDB swaps the pool constructor for tests and returns a restore function.
func OverrideOpenDB(fn func(cfg pgx.ConnConfig) *sql.DB) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := openDB
	openDB = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		openDB = prev
	}
}
