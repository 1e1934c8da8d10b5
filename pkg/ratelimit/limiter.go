// Package ratelimit paces requests to feature services with a token bucket
// per host. A single Limiter may be shared by several harvest engines so that
// concurrent harvests against the same server stay within one budget.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var harvestRateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "harvest_rate_limit_wait_seconds",
	Help:    "Time spent waiting for a request token by host",
	Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
}, []string{"host"})

// Config holds limiter configuration.
type Config struct {
	// RPS is the sustained request rate per host. Zero or less disables pacing.
	RPS float64

	// Burst is the number of requests allowed back to back (default 1).
	Burst int
}

// DefaultConfig returns an unlimited configuration.
func DefaultConfig() Config {
	return Config{RPS: 0, Burst: 1}
}

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until a token for the host of rawURL is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}

	start := time.Now()
	if err := l.forHost(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		harvestRateLimitWaitSeconds.WithLabelValues(host).Observe(d.Seconds())
	}
	return nil
}

// Unlimited reports whether the limiter never blocks.
func (l *Limiter) Unlimited() bool {
	return l.limit == rate.Inf
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = lim
	}
	return lim
}
