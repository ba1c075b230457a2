// Package domain defines the records, row-store contract, and error taxonomy
// shared by the claimdesk core and its adapters.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EntityType identifies the kind of record a registrar or reader manages.
type EntityType string

const (
	// EntityClaim identifies a claim row. Claims are created elsewhere and only read here.
	EntityClaim EntityType = "claim"
	// EntityClaimContext identifies a claim context row.
	EntityClaimContext EntityType = "claim_context"
	// EntityClaimWorkflow identifies a claim workflow row.
	EntityClaimWorkflow EntityType = "claim_workflow"
	// EntityDocument identifies an uploaded supporting document.
	EntityDocument EntityType = "document"
)

// Table names in the backing row store.
const (
	TableClaims        = "claims"
	TableClaimContexts = "claim_contexts"
	TableWorkflow      = "workflow"
)

// Column names shared across tables.
const (
	ColumnID        = "id"
	ColumnClaimID   = "claim_id"
	ColumnCreatedAt = "created_at"
	ColumnContext   = "context"
	ColumnAnalysis  = "analysis"
	ColumnMarkdown  = "markdown"
)

// ClaimContext holds the free-form context registered once per claim.
type ClaimContext struct {
	ID        string     `json:"id,omitempty"`
	ClaimID   string     `json:"claim_id"`
	Context   string     `json:"context"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	// Row is the stored record. When set it is what the context encodes to.
	Row Row `json:"-"`
}

// MarshalJSON encodes the stored record when present so every column keeps
// the type the store returned.
func (c ClaimContext) MarshalJSON() ([]byte, error) {
	if c.Row != nil {
		return json.Marshal(c.Row)
	}
	type plain ClaimContext
	return json.Marshal(plain(c))
}

// ClaimWorkflow holds the analysis output registered once per claim.
type ClaimWorkflow struct {
	ID        string     `json:"id,omitempty"`
	ClaimID   string     `json:"claim_id"`
	Context   string     `json:"context"`
	Analysis  string     `json:"analysis"`
	Markdown  string     `json:"markdown"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	// Row is the stored record. When set it is what the workflow encodes to.
	Row Row `json:"-"`
}

// MarshalJSON encodes the stored record when present.
func (w ClaimWorkflow) MarshalJSON() ([]byte, error) {
	if w.Row != nil {
		return json.Marshal(w.Row)
	}
	type plain ClaimWorkflow
	return json.Marshal(plain(w))
}

// Claim is an opaque claim row. Every column returned by the store is kept so
// responses pass the record through unchanged.
type Claim Row

// ID returns the claim identifier rendered as a string.
func (c Claim) ID() string { return Row(c).String(ColumnID) }

// CreatedAt returns the creation timestamp when the store supplied a parseable one.
func (c Claim) CreatedAt() (time.Time, bool) { return Row(c).Time(ColumnCreatedAt) }

// Document describes an uploaded supporting document.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size_bytes"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ClaimContextFromRow maps a store row onto a ClaimContext. The row itself is
// retained for encoding.
func ClaimContextFromRow(row Row) ClaimContext {
	out := ClaimContext{
		ID:      row.String(ColumnID),
		ClaimID: row.String(ColumnClaimID),
		Context: row.String(ColumnContext),
		Row:     row,
	}
	if ts, ok := row.Time(ColumnCreatedAt); ok {
		out.CreatedAt = &ts
	}
	return out
}

// ClaimWorkflowFromRow maps a store row onto a ClaimWorkflow.
func ClaimWorkflowFromRow(row Row) ClaimWorkflow {
	out := ClaimWorkflow{
		ID:       row.String(ColumnID),
		ClaimID:  row.String(ColumnClaimID),
		Context:  row.String(ColumnContext),
		Analysis: row.String(ColumnAnalysis),
		Markdown: row.String(ColumnMarkdown),
		Row:      row,
	}
	if ts, ok := row.Time(ColumnCreatedAt); ok {
		out.CreatedAt = &ts
	}
	return out
}

// timestampLayouts lists the textual forms stores use for created_at.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// String renders the column as text. Missing and nil columns yield "".
func (r Row) String(column string) string {
	switch v := r[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Time interprets the column as a timestamp.
func (r Row) Time(column string) (time.Time, bool) {
	switch v := r[column].(type) {
	case time.Time:
		return v, true
	case string:
		return parseTimestamp(v)
	case []byte:
		return parseTimestamp(string(v))
	default:
		return time.Time{}, false
	}
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
