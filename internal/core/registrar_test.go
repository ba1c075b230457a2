package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"claimdesk/internal/infra/persistence/memory"
	"claimdesk/pkg/domain"
)

type faultyStore struct {
	rows      []domain.Row
	selectErr error
	insertErr error
	inserts   int
}

func (f *faultyStore) Select(context.Context, domain.Query) ([]domain.Row, error) {
	return f.rows, f.selectErr
}

func (f *faultyStore) Insert(_ context.Context, _ string, row domain.Row) ([]domain.Row, error) {
	f.inserts++
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return []domain.Row{row}, nil
}

func (f *faultyStore) Close() error { return nil }

func TestContextRegisterThenConflict(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := NewContextRegistrar(store)

	created, err := reg.Register(ctx, ContextInput{ClaimID: "abc123", Context: "water damage"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(created) != 1 || created[0].ClaimID != "abc123" || created[0].ID == "" || created[0].CreatedAt == nil {
		t.Fatalf("unexpected inserted rows: %+v", created)
	}

	_, err = reg.Register(ctx, ContextInput{ClaimID: "abc123", Context: "again"})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "context already exists for this claim" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	rows, err := reg.GetByClaim(ctx, "abc123")
	if err != nil || len(rows) != 1 || rows[0].Context != "water damage" {
		t.Fatalf("expected single original row, got %+v %v", rows, err)
	}
	all, err := reg.GetAll(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("unexpected all: %+v %v", all, err)
	}
	if none, err := reg.GetByClaim(ctx, "zzz"); err != nil || len(none) != 0 {
		t.Fatalf("expected no rows, got %+v %v", none, err)
	}
}

func TestWorkflowRegisterThenConflict(t *testing.T) {
	ctx := context.Background()
	reg := NewWorkflowRegistrar(memory.NewStore())
	in := WorkflowInput{ClaimID: "abc123", Context: "c", Analysis: "a", Markdown: "# m"}
	created, err := reg.Register(ctx, in)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(created) != 1 || created[0].Analysis != "a" || created[0].Markdown != "# m" {
		t.Fatalf("unexpected workflow: %+v", created)
	}
	_, err = reg.Register(ctx, in)
	if err == nil || err.Error() != "workflow already exists for this claim" {
		t.Fatalf("expected workflow conflict, got %v", err)
	}
	all, _ := reg.GetAll(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one workflow row, got %d", len(all))
	}
}

func TestContextAndWorkflowAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if _, err := NewContextRegistrar(store).Register(ctx, ContextInput{ClaimID: "c1"}); err != nil {
		t.Fatalf("context: %v", err)
	}
	if _, err := NewWorkflowRegistrar(store).Register(ctx, WorkflowInput{ClaimID: "c1"}); err != nil {
		t.Fatalf("workflow for same claim should succeed: %v", err)
	}
}

func TestRegisterRejectsBlankClaimID(t *testing.T) {
	store := &faultyStore{}
	_, err := NewContextRegistrar(store).Register(context.Background(), ContextInput{ClaimID: "  "})
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.inserts != 0 {
		t.Fatalf("no insert expected")
	}
}

func TestRegisterUpstreamFaults(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		store *faultyStore
		want  string
	}{
		{"select", &faultyStore{selectErr: fmt.Errorf("connection refused")}, "connection refused"},
		{"insert", &faultyStore{insertErr: fmt.Errorf("permission denied for table claim_contexts")}, "permission denied for table claim_contexts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewContextRegistrar(tc.store).Register(ctx, ContextInput{ClaimID: "x"})
			var up domain.UpstreamError
			if !errors.As(err, &up) {
				t.Fatalf("expected upstream error, got %v", err)
			}
			if err.Error() != tc.want {
				t.Fatalf("expected verbatim store message, got %q", err.Error())
			}
		})
	}
	if _, err := NewWorkflowRegistrar(&faultyStore{selectErr: fmt.Errorf("boom")}).GetAll(ctx); err == nil {
		t.Fatalf("expected list error")
	}
	if _, err := NewWorkflowRegistrar(&faultyStore{selectErr: fmt.Errorf("boom")}).GetByClaim(ctx, "x"); err == nil {
		t.Fatalf("expected get error")
	}
}

func TestRegisterDuplicateOnInsertIsConflict(t *testing.T) {
	store := &faultyStore{insertErr: fmt.Errorf("insert workflow: %w", domain.ErrDuplicate)}
	_, err := NewWorkflowRegistrar(store).Register(context.Background(), WorkflowInput{ClaimID: "x"})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) || conflict.ClaimID != "x" {
		t.Fatalf("expected conflict from store duplicate, got %v", err)
	}
}

func TestConcurrentRegisterStoresOneRow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := NewContextRegistrar(store)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Register(ctx, ContextInput{ClaimID: "race", Context: "c"})
			mu.Lock()
			defer mu.Unlock()
			var conflict domain.ConflictError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &conflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || conflicts != 15 {
		t.Fatalf("expected 1 success and 15 conflicts, got %d/%d", ok, conflicts)
	}
	if n := store.Len(domain.TableClaimContexts); n != 1 {
		t.Fatalf("expected one stored row, got %d", n)
	}
}
