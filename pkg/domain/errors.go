package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicate is reported by row stores when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("rowstore: duplicate key")

// ConflictError is returned when a record already exists for the claim.
type ConflictError struct {
	Entity  EntityType
	ClaimID string
}

func (e ConflictError) Error() string {
	switch e.Entity {
	case EntityClaimWorkflow:
		return "workflow already exists for this claim"
	default:
		return "context already exists for this claim"
	}
}

// NotFoundError is returned when a lookup that must yield one record yields none.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("no %ss found in database", strings.ReplaceAll(string(e.Entity), "_", " "))
	}
	return fmt.Sprintf("%s %s not found", strings.ReplaceAll(string(e.Entity), "_", " "), e.ID)
}

// UpstreamError wraps a row store or object store fault. The store message is
// carried through verbatim, optionally behind a short prefix.
type UpstreamError struct {
	Prefix string
	Err    error
}

func (e UpstreamError) Error() string {
	if e.Err == nil {
		return e.Prefix
	}
	if e.Prefix == "" {
		return e.Err.Error()
	}
	return e.Prefix + ": " + e.Err.Error()
}

func (e UpstreamError) Unwrap() error { return e.Err }

// ValidationError reports a request that is missing required input.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	msg := "missing required fields: " + strings.Join(e.Fields, ", ")
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

var (
	// ErrDocumentTooLarge is returned when an upload exceeds the configured size limit.
	ErrDocumentTooLarge = errors.New("file exceeds maximum upload size")
	// ErrDocumentType is returned when an upload's extension is not accepted.
	ErrDocumentType = errors.New("unsupported file type")
)
