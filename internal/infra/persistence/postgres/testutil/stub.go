// Package testutil provides a stub database/sql connection that understands the
// statements the postgres row store emits.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
)

// StubConn records statements and serves them from in-memory tables. Types
// maps table and column to the database type name the rows report.
type StubConn struct {
	mu       sync.Mutex
	Queries  []string
	Args     [][]any
	Tables   map[string][]map[string]any
	Unique   map[string]string
	Types    map[string]map[string]string
	FailPing bool
	QueryErr error
	Closed   bool
}

// NewStubDB returns a sql.DB whose single connection is conn.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any), Unique: make(map[string]string), Types: make(map[string]map[string]string)}
	return sql.OpenDB(stubConnector{conn: conn}), conn
}

type stubConnector struct{ conn *StubConn }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c stubConnector) Driver() driver.Driver                        { return stubDriver{conn: c.conn} }

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error {
	c.mu.Lock()
	c.Closed = true
	c.mu.Unlock()
	return nil
}

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) { return nil, fmt.Errorf("transactions not supported") }

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, named []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	args := make([]any, len(named))
	for i, nv := range named {
		args[i] = nv.Value
	}
	c.Queries = append(c.Queries, query)
	c.Args = append(c.Args, args)
	if c.QueryErr != nil {
		return nil, c.QueryErr
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		return c.insert(query, args)
	case strings.HasPrefix(upper, "SELECT"):
		return c.selectRows(query, args)
	default:
		return nil, fmt.Errorf("unsupported statement: %s", query)
	}
}

func (c *StubConn) insert(query string, args []any) (driver.Rows, error) {
	rest := strings.TrimSpace(query[len("INSERT INTO"):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx <= open {
		return nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := unquote(rest[:open])
	cols := splitColumns(rest[open+1 : closeIdx])
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols)+1)
	for i, col := range cols {
		row[col] = args[i]
	}
	if col, ok := c.Unique[table]; ok {
		for _, existing := range c.Tables[table] {
			if existing[col] == row[col] {
				return nil, &pgconn.PgError{Code: "23505", Message: fmt.Sprintf("duplicate key value violates unique constraint %q", table+"_"+col+"_key")}
			}
		}
	}
	if _, ok := row["id"]; !ok {
		row["id"] = int64(len(c.Tables[table]) + 1)
	}
	c.Tables[table] = append(c.Tables[table], row)
	return newRows([]map[string]any{row}, c.Types[table]), nil
}

func (c *StubConn) selectRows(query string, args []any) (driver.Rows, error) {
	lower := strings.ToLower(query)
	fromIdx := strings.Index(lower, " from ")
	if fromIdx == -1 {
		return nil, fmt.Errorf("cannot parse select: %s", query)
	}
	rest := strings.TrimSpace(query[fromIdx+len(" from "):])
	table := unquote(strings.Fields(rest)[0])
	var filterCols []string
	if whereIdx := strings.Index(strings.ToLower(rest), " where "); whereIdx != -1 {
		clause := rest[whereIdx+len(" where "):]
		for _, stop := range []string{" ORDER BY ", " LIMIT "} {
			if i := strings.Index(clause, stop); i != -1 {
				clause = clause[:i]
			}
		}
		for _, pred := range strings.Split(clause, " AND ") {
			parts := strings.SplitN(pred, "=", 2)
			filterCols = append(filterCols, unquote(parts[0]))
		}
	}
	var matched []map[string]any
	for _, row := range c.Tables[table] {
		ok := true
		for i, col := range filterCols {
			if row[col] != args[i] {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, row)
		}
	}
	if strings.Contains(query, " LIMIT ") {
		limit, _ := args[len(args)-1].(int64)
		if limit < 0 {
			return nil, &pgconn.PgError{Code: "2201W", Message: "LIMIT must not be negative"}
		}
		if int(limit) < len(matched) {
			matched = matched[:limit]
		}
	}
	return newRows(matched, c.Types[table]), nil
}

func newRows(rows []map[string]any, types map[string]string) *stubRows {
	set := map[string]struct{}{}
	for _, row := range rows {
		for col := range row {
			set[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	values := make([][]driver.Value, 0, len(rows))
	for _, row := range rows {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	kinds := make([]string, len(cols))
	for i, col := range cols {
		kinds[i] = types[col]
	}
	return &stubRows{cols: cols, kinds: kinds, rows: values}
}

type stubRows struct {
	cols  []string
	kinds []string
	rows  [][]driver.Value
	idx   int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

// ColumnTypeDatabaseTypeName reports the type registered in StubConn.Types.
func (r *stubRows) ColumnTypeDatabaseTypeName(index int) string { return r.kinds[index] }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func unquote(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), `"`)
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, unquote(part))
	}
	return out
}
