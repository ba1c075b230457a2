// Package memory provides an in-memory row store used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"claimdesk/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the row store interface.
var _ domain.RowStore = (*Store)(nil)

var errClosed = errors.New("memory store closed")

// Store keeps rows per table in insertion order. Unique columns are checked
// and written under one lock, so concurrent inserts of the same key cannot
// both succeed.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]domain.Row
	unique map[string][]string
	now    func() time.Time
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithUniqueColumns replaces the unique columns enforced for table.
func WithUniqueColumns(table string, columns ...string) Option {
	return func(s *Store) {
		s.unique[table] = append([]string(nil), columns...)
	}
}

// WithClock overrides the clock used for defaulted created_at values.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns an empty store. claim_id is unique in the context and
// workflow tables unless overridden.
func NewStore(opts ...Option) *Store {
	s := &Store{
		tables: make(map[string][]domain.Row),
		unique: map[string][]string{
			domain.TableClaimContexts: {domain.ColumnClaimID},
			domain.TableWorkflow:      {domain.ColumnClaimID},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns copies of the rows matching q.
func (s *Store) Select(_ context.Context, q domain.Query) ([]domain.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Limited && q.Limit < 0 {
		return nil, fmt.Errorf("LIMIT must not be negative")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	out := make([]domain.Row, 0, len(s.tables[q.Table]))
	for _, row := range s.tables[q.Table] {
		if matches(row, q.Filters) {
			out = append(out, cloneRow(row))
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limited && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

// Insert stores record, defaulting id and created_at when absent, and returns the stored row.
func (s *Store) Insert(_ context.Context, table string, record domain.Row) ([]domain.Row, error) {
	if err := domain.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	for col := range record {
		if err := domain.ValidateIdentifier(col); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	for _, col := range s.unique[table] {
		value, ok := record[col]
		if !ok {
			continue
		}
		for _, existing := range s.tables[table] {
			if valuesEqual(existing[col], value) {
				return nil, fmt.Errorf("insert %s: %s %v: %w", table, col, value, domain.ErrDuplicate)
			}
		}
	}
	row := cloneRow(record)
	if _, ok := row[domain.ColumnID]; !ok {
		row[domain.ColumnID] = uuid.NewString()
	}
	if _, ok := row[domain.ColumnCreatedAt]; !ok {
		row[domain.ColumnCreatedAt] = s.now()
	}
	s.tables[table] = append(s.tables[table], row)
	return []domain.Row{cloneRow(row)}, nil
}

// Len reports how many rows table holds.
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// Close marks the store closed; later calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func matches(row domain.Row, filters []domain.Filter) bool {
	for _, f := range filters {
		if !valuesEqual(row[f.Column], f.Value) {
			return false
		}
	}
	return true
}

func cloneRow(in domain.Row) domain.Row {
	out := make(domain.Row, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
