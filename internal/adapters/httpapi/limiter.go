package httpapi

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultLimiterIdleTTL is how long a client's bucket survives without requests.
const DefaultLimiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter *rate.Limiter
	// lastUsed is a Unix nanosecond timestamp.
	lastUsed atomic.Int64
}

// Limiter applies a token bucket per client IP. Buckets idle for longer than
// the TTL are dropped during later lookups.
type Limiter struct {
	mu        sync.RWMutex
	limiters  map[string]*clientLimiter
	rate      rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewLimiter returns a limiter admitting requestsPerSecond per client with
// the given burst. A non-positive burst defaults to 5.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	return &Limiter{
		limiters:  make(map[string]*clientLimiter),
		rate:      rate.Limit(requestsPerSecond),
		burst:     burst,
		idleTTL:   DefaultLimiterIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow reports whether client may proceed now.
func (l *Limiter) Allow(client string) bool {
	return l.limiterFor(client).Allow()
}

// Len reports how many client buckets are tracked.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

func (l *Limiter) limiterFor(client string) *rate.Limiter {
	now := l.now()
	l.mu.RLock()
	entry, ok := l.limiters[client]
	due := now.Sub(l.lastSweep) >= l.idleTTL
	l.mu.RUnlock()
	if ok && !due {
		entry.lastUsed.Store(now.UnixNano())
		return entry.limiter
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	entry, ok = l.limiters[client]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[client] = entry
	}
	entry.lastUsed.Store(now.UnixNano())
	return entry.limiter
}

// sweep drops idle buckets. Callers hold mu for writing.
func (l *Limiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idleTTL).UnixNano()
	for client, entry := range l.limiters {
		if entry.lastUsed.Load() < cutoff {
			delete(l.limiters, client)
		}
	}
	l.lastSweep = now
}

// Wrap rejects requests over the client's budget with 429.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
