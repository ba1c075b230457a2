package domain

import (
	"context"
	"fmt"
	"regexp"
)

// Row is a single record as exchanged with the row store, keyed by column name.
type Row map[string]any

// Filter is an equality predicate on one column.
type Filter struct {
	Column string
	Value  any
}

// Query describes a filtered, optionally ordered and limited read of one table.
type Query struct {
	Table      string
	Filters    []Filter
	OrderBy    string
	Descending bool
	// Limit applies only when Limited is set; the value is handed to the store
	// unchanged, including zero and negative counts.
	Limit   int
	Limited bool
}

// Where returns a copy of q with an additional equality filter.
func (q Query) Where(column string, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Column: column, Value: value})
	return q
}

// WithLimit returns a copy of q limited to n rows.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	q.Limited = true
	return q
}

// Ordered returns a copy of q ordered by column.
func (q Query) Ordered(column string, descending bool) Query {
	q.OrderBy = column
	q.Descending = descending
	return q
}

// From starts a query over table.
func From(table string) Query { return Query{Table: table} }

// RowStore is the external relational store the core talks to. Both calls are
// synchronous and may fail on transport, auth, or constraint errors.
// Implementations return ErrDuplicate (possibly wrapped) when an insert
// violates a uniqueness constraint.
type RowStore interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, record Row) ([]Row, error)
	Close() error
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects table and column names that could not be used
// verbatim as SQL identifiers.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// Validate checks every identifier referenced by q.
func (q Query) Validate() error {
	if err := ValidateIdentifier(q.Table); err != nil {
		return err
	}
	for _, f := range q.Filters {
		if err := ValidateIdentifier(f.Column); err != nil {
			return err
		}
	}
	if q.OrderBy != "" {
		if err := ValidateIdentifier(q.OrderBy); err != nil {
			return err
		}
	}
	return nil
}
