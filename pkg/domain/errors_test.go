package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ConflictError{Entity: EntityClaimContext, ClaimID: "a"}, "context already exists for this claim"},
		{ConflictError{Entity: EntityClaimWorkflow, ClaimID: "a"}, "workflow already exists for this claim"},
		{NotFoundError{Entity: EntityClaim}, "no claims found in database"},
		{NotFoundError{Entity: EntityDocument, ID: "1-a.pdf"}, "document 1-a.pdf not found"},
		{UpstreamError{Prefix: "failed to fetch latest claim", Err: errors.New("timeout")}, "failed to fetch latest claim: timeout"},
		{UpstreamError{Err: errors.New("verbatim")}, "verbatim"},
		{UpstreamError{Prefix: "only prefix"}, "only prefix"},
		{ValidationError{Fields: []string{"claim_id", "context"}}, "missing required fields: claim_id, context"},
		{ValidationError{Fields: []string{"file"}, Reason: "multipart"}, "missing required fields: file (multipart)"},
		{ValidationError{Reason: "claim_id must not be blank"}, "claim_id must not be blank"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestUpstreamUnwrap(t *testing.T) {
	err := fmt.Errorf("handler: %w", UpstreamError{Err: fmt.Errorf("insert: %w", ErrDuplicate)})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected unwrap chain to reach ErrDuplicate")
	}
	var up UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError in chain")
	}
}
