package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"claimdesk/internal/infra/persistence/memory"
)

type recordingMetrics struct {
	ops     []string
	success []bool
}

func (r *recordingMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	r.ops = append(r.ops, op)
	r.success = append(r.success, success)
}

func TestOperationsReportMetrics(t *testing.T) {
	rec := &recordingMetrics{}
	store := memory.NewStore()
	reg := NewContextRegistrar(store, WithMetrics(rec))
	ctx := context.Background()
	_, _ = reg.Register(ctx, ContextInput{ClaimID: "a"})
	_, _ = reg.Register(ctx, ContextInput{ClaimID: "a"})
	_, _ = NewClaimReader(store, WithMetrics(rec)).GetLatest(ctx)

	want := []string{"contexts.register", "contexts.register", "claims.latest"}
	if len(rec.ops) != len(want) {
		t.Fatalf("expected %v, got %v", want, rec.ops)
	}
	for i := range want {
		if rec.ops[i] != want[i] {
			t.Fatalf("op %d: expected %s, got %s", i, want[i], rec.ops[i])
		}
	}
	if !rec.success[0] || rec.success[1] || rec.success[2] {
		t.Fatalf("unexpected outcomes %v", rec.success)
	}
}

func TestPrometheusRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	rec := NewPrometheusMetricsRecorder(registry)
	rec.Observe(context.Background(), "claims.list", true, time.Millisecond)
	rec.Observe(context.Background(), "claims.list", false, time.Millisecond)
	rec.Observe(context.Background(), "claims.list", true, time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)

	if got := testutil.ToFloat64(rec.Results().WithLabelValues("claims.list", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(rec.Results().WithLabelValues("claims.list", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if n, err := testutil.GatherAndCount(registry, "claimdesk_store_operations_total"); err != nil || n != 2 {
		t.Fatalf("expected 2 series, got %d %v", n, err)
	}
	if NewPrometheusMetricsRecorder(nil) == nil {
		t.Fatalf("unregistered recorder should still be usable")
	}
}
