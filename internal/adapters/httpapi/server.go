package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Options configures the middleware stack composed by NewServer.
type Options struct {
	Logger    *slog.Logger
	Metrics   *HTTPMetrics
	RateLimit float64
	RateBurst int
}

// NewServer composes h with request logging, metrics and, when RateLimit is
// positive, per-client rate limiting. Logging is outermost.
func NewServer(h http.Handler, opts Options) http.Handler {
	next := h
	if opts.RateLimit > 0 {
		next = NewLimiter(opts.RateLimit, opts.RateBurst).Wrap(next)
	}
	if opts.Metrics != nil {
		next = opts.Metrics.Wrap(next)
	}
	return RequestLogger(opts.Logger, next)
}

// NewRegistry returns a registry carrying the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}
