package core

import (
	"context"

	"claimdesk/pkg/domain"
)

// MaxRecentClaims caps GetRecent regardless of the requested count.
const MaxRecentClaims = 100

// ClaimReader serves read-only lookups over the claims table.
type ClaimReader struct {
	store domain.RowStore
	opts  options
}

// NewClaimReader returns a reader over store.
func NewClaimReader(store domain.RowStore, opts ...Option) *ClaimReader {
	return &ClaimReader{store: store, opts: buildOptions(opts)}
}

// GetAll returns every claim in store order.
func (r *ClaimReader) GetAll(ctx context.Context) (out []domain.Claim, err error) {
	started := r.opts.now()
	defer func() { r.opts.observe(ctx, "claims.list", started, err) }()
	rows, err := r.store.Select(ctx, domain.From(domain.TableClaims))
	if err != nil {
		return nil, domain.UpstreamError{Err: err}
	}
	return toClaims(rows), nil
}

// GetByID returns the claims whose id equals id; empty when none match.
func (r *ClaimReader) GetByID(ctx context.Context, id string) (out []domain.Claim, err error) {
	started := r.opts.now()
	defer func() { r.opts.observe(ctx, "claims.get", started, err) }()
	rows, err := r.store.Select(ctx, domain.From(domain.TableClaims).Where(domain.ColumnID, id))
	if err != nil {
		return nil, domain.UpstreamError{Err: err}
	}
	return toClaims(rows), nil
}

// GetLatest returns the most recently created claim.
func (r *ClaimReader) GetLatest(ctx context.Context) (out domain.Claim, err error) {
	started := r.opts.now()
	defer func() { r.opts.observe(ctx, "claims.latest", started, err) }()
	rows, err := r.store.Select(ctx, newestFirst().WithLimit(1))
	if err != nil {
		return nil, domain.UpstreamError{Prefix: "failed to fetch latest claim", Err: err}
	}
	if len(rows) == 0 {
		return nil, domain.NotFoundError{Entity: domain.EntityClaim}
	}
	return domain.Claim(rows[0]), nil
}

// GetRecent returns up to count claims, newest first. count is capped at
// MaxRecentClaims; smaller values, including non-positive ones, reach the
// store unchanged.
func (r *ClaimReader) GetRecent(ctx context.Context, count int) (out []domain.Claim, err error) {
	started := r.opts.now()
	defer func() { r.opts.observe(ctx, "claims.recent", started, err) }()
	if count > MaxRecentClaims {
		count = MaxRecentClaims
	}
	rows, err := r.store.Select(ctx, newestFirst().WithLimit(count))
	if err != nil {
		return nil, domain.UpstreamError{Prefix: "failed to fetch recent claims", Err: err}
	}
	return toClaims(rows), nil
}

func newestFirst() domain.Query {
	return domain.From(domain.TableClaims).Ordered(domain.ColumnCreatedAt, true)
}

func toClaims(rows []domain.Row) []domain.Claim {
	out := make([]domain.Claim, len(rows))
	for i, row := range rows {
		out[i] = domain.Claim(row)
	}
	return out
}
