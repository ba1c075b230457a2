package core

import (
	"context"
	"errors"
	"strings"

	"claimdesk/pkg/domain"
)

// ContextInput is the payload for registering a claim context.
type ContextInput struct {
	ClaimID string
	Context string
}

// WorkflowInput is the payload for registering a claim workflow.
type WorkflowInput struct {
	ClaimID  string
	Context  string
	Analysis string
	Markdown string
}

// registrar keeps at most one row per claim_id in table. The existence check
// and the insert are separate store calls; a concurrent registration that
// slips between them is caught by the store's unique key and reported as a
// conflict as well.
type registrar[T any] struct {
	store  domain.RowStore
	table  string
	entity domain.EntityType
	decode func(domain.Row) T
	opts   options
}

func (r registrar[T]) decodeAll(rows []domain.Row) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.decode(row))
	}
	return out
}

func (r registrar[T]) all(ctx context.Context, op string) (out []T, err error) {
	started := r.opts.now()
	defer func() { r.opts.observe(ctx, op, started, err) }()
	rows, err := r.store.Select(ctx, domain.From(r.table))
	if err != nil {
		return nil, domain.UpstreamError{Err: err}
	}
	return r.decodeAll(rows), nil
}

func (r registrar[T]) byClaim(ctx context.Context, op, claimID string) (out []T, err error) {
	started := r.opts.now()
	defer func() { r.opts.observe(ctx, op, started, err) }()
	rows, err := r.store.Select(ctx, domain.From(r.table).Where(domain.ColumnClaimID, claimID))
	if err != nil {
		return nil, domain.UpstreamError{Err: err}
	}
	return r.decodeAll(rows), nil
}

func (r registrar[T]) register(ctx context.Context, op string, record domain.Row) (out []T, err error) {
	started := r.opts.now()
	defer func() { r.opts.observe(ctx, op, started, err) }()

	claimID, _ := record[domain.ColumnClaimID].(string)
	if strings.TrimSpace(claimID) == "" {
		return nil, domain.ValidationError{Reason: "claim_id must not be blank"}
	}
	existing, err := r.store.Select(ctx, domain.From(r.table).Where(domain.ColumnClaimID, claimID))
	if err != nil {
		return nil, domain.UpstreamError{Err: err}
	}
	if len(existing) > 0 {
		return nil, domain.ConflictError{Entity: r.entity, ClaimID: claimID}
	}
	inserted, err := r.store.Insert(ctx, r.table, record)
	if errors.Is(err, domain.ErrDuplicate) {
		return nil, domain.ConflictError{Entity: r.entity, ClaimID: claimID}
	}
	if err != nil {
		return nil, domain.UpstreamError{Err: err}
	}
	return r.decodeAll(inserted), nil
}

// ContextRegistrar manages the single context row kept per claim.
type ContextRegistrar struct {
	reg registrar[domain.ClaimContext]
}

// NewContextRegistrar returns a registrar over the claim_contexts table.
func NewContextRegistrar(store domain.RowStore, opts ...Option) *ContextRegistrar {
	return &ContextRegistrar{reg: registrar[domain.ClaimContext]{
		store:  store,
		table:  domain.TableClaimContexts,
		entity: domain.EntityClaimContext,
		decode: domain.ClaimContextFromRow,
		opts:   buildOptions(opts),
	}}
}

// GetAll returns every context row in store order.
func (c *ContextRegistrar) GetAll(ctx context.Context) ([]domain.ClaimContext, error) {
	return c.reg.all(ctx, "contexts.list")
}

// GetByClaim returns the context rows recorded for claimID.
func (c *ContextRegistrar) GetByClaim(ctx context.Context, claimID string) ([]domain.ClaimContext, error) {
	return c.reg.byClaim(ctx, "contexts.get", claimID)
}

// Register inserts a context for in.ClaimID unless one already exists.
func (c *ContextRegistrar) Register(ctx context.Context, in ContextInput) ([]domain.ClaimContext, error) {
	return c.reg.register(ctx, "contexts.register", domain.Row{
		domain.ColumnClaimID: in.ClaimID,
		domain.ColumnContext: in.Context,
	})
}

// WorkflowRegistrar manages the single workflow row kept per claim.
type WorkflowRegistrar struct {
	reg registrar[domain.ClaimWorkflow]
}

// NewWorkflowRegistrar returns a registrar over the workflow table.
func NewWorkflowRegistrar(store domain.RowStore, opts ...Option) *WorkflowRegistrar {
	return &WorkflowRegistrar{reg: registrar[domain.ClaimWorkflow]{
		store:  store,
		table:  domain.TableWorkflow,
		entity: domain.EntityClaimWorkflow,
		decode: domain.ClaimWorkflowFromRow,
		opts:   buildOptions(opts),
	}}
}

// GetAll returns every workflow row in store order.
func (w *WorkflowRegistrar) GetAll(ctx context.Context) ([]domain.ClaimWorkflow, error) {
	return w.reg.all(ctx, "workflows.list")
}

// GetByClaim returns the workflow rows recorded for claimID.
func (w *WorkflowRegistrar) GetByClaim(ctx context.Context, claimID string) ([]domain.ClaimWorkflow, error) {
	return w.reg.byClaim(ctx, "workflows.get", claimID)
}

// Register inserts a workflow for in.ClaimID unless one already exists.
func (w *WorkflowRegistrar) Register(ctx context.Context, in WorkflowInput) ([]domain.ClaimWorkflow, error) {
	return w.reg.register(ctx, "workflows.register", domain.Row{
		domain.ColumnClaimID:  in.ClaimID,
		domain.ColumnContext:  in.Context,
		domain.ColumnAnalysis: in.Analysis,
		domain.ColumnMarkdown: in.Markdown,
	})
}
