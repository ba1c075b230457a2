package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives the outcome of every core operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// PrometheusMetricsRecorder exports operation counts and latencies.
type PrometheusMetricsRecorder struct {
	results   *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder creates the recorder's collectors and registers
// them with reg. A nil reg leaves them unregistered.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	rec := &PrometheusMetricsRecorder{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claimdesk",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Core operations by outcome.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "claimdesk",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Core operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(rec.results, rec.durations)
	}
	return rec
}

// Observe records a core operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.results.WithLabelValues(operation, result).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// Results exposes the outcome counter for tests.
func (r *PrometheusMetricsRecorder) Results() *prometheus.CounterVec { return r.results }

// Option configures a core component.
type Option func(*options)

type options struct {
	metrics MetricsRecorder
	now     func() time.Time
}

// WithMetrics routes operation outcomes to m.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock overrides the time source used for durations and generated names.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{metrics: noopMetrics{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) observe(ctx context.Context, operation string, started time.Time, err error) {
	o.metrics.Observe(ctx, operation, err == nil, o.now().Sub(started))
}
