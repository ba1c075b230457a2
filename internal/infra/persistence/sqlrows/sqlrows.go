// Package sqlrows renders row-store queries as SQL and scans result sets back
// into rows. The postgres and sqlite stores share it and differ only in their
// Dialect.
package sqlrows

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"claimdesk/pkg/domain"
)

// Dialect captures the syntax differences between SQL backends.
type Dialect struct {
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Quote renders a validated identifier.
	Quote func(name string) string
}

// Select renders q as a SELECT statement with bind arguments.
func (d Dialect) Select(q domain.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	args := make([]any, 0, len(q.Filters)+1)
	b.WriteString("SELECT * FROM ")
	b.WriteString(d.Quote(q.Table))
	for i, f := range q.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, f.Value)
		fmt.Fprintf(&b, "%s = %s", d.Quote(f.Column), d.Placeholder(len(args)))
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(d.Quote(q.OrderBy))
		if q.Descending {
			b.WriteString(" DESC")
		}
	}
	if q.Limited {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT %s", d.Placeholder(len(args)))
	}
	return b.String(), args, nil
}

// Insert renders an INSERT ... RETURNING * statement. Columns are emitted in
// name order so the statement text is stable.
func (d Dialect) Insert(table string, record domain.Row) (string, []any, error) {
	if err := domain.ValidateIdentifier(table); err != nil {
		return "", nil, err
	}
	cols := make([]string, 0, len(record))
	for col := range record {
		if err := domain.ValidateIdentifier(col); err != nil {
			return "", nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", d.Quote(table)), nil, nil
	}
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = d.Quote(col)
		marks[i] = d.Placeholder(i + 1)
		args[i] = record[col]
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		d.Quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	return stmt, args, nil
}

// Scan drains rows into domain rows. JSON columns are kept as raw JSON and
// numeric columns as JSON numbers; other byte slices become strings.
func Scan(rows *sql.Rows) ([]domain.Row, error) {
	defer func() { _ = rows.Close() }()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	kinds := make([]string, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			kinds[i] = strings.ToUpper(ct.DatabaseTypeName())
		}
	}
	out := []domain.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		targets := make([]any, len(cols))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(domain.Row, len(cols))
		for i, col := range cols {
			row[col] = convert(kinds[i], values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func convert(kind string, value any) any {
	var text string
	switch v := value.(type) {
	case []byte:
		text = string(v)
	case string:
		text = v
	default:
		return value
	}
	switch kind {
	case "JSON", "JSONB":
		if json.Valid([]byte(text)) {
			return json.RawMessage(text)
		}
	case "NUMERIC", "DECIMAL":
		if isNumber(text) {
			return json.Number(text)
		}
	}
	return text
}

// isNumber reports whether text is a JSON number literal. NaN and Infinity
// are not.
func isNumber(text string) bool {
	if text == "" || (text[0] != '-' && (text[0] < '0' || text[0] > '9')) {
		return false
	}
	var n json.Number
	return json.Unmarshal([]byte(text), &n) == nil
}
