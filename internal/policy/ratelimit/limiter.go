// Package ratelimit paces page loads per host with token buckets, so a long
// watch-list on one store does not hammer a single site.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	delay    *prometheus.HistogramVec
}

// Config holds rate limiter configuration.
type Config struct {
	// MinInterval is the spacing between loads of the same host. Zero or
	// negative disables pacing.
	MinInterval time.Duration
	Burst       int
	// Registerer, when set, receives sizewatch_politeness_delay_seconds.
	Registerer prometheus.Registerer
}

// New creates a Limiter.
func New(cfg Config) (*Limiter, error) {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
	if cfg.Registerer != nil {
		l.delay = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sizewatch_politeness_delay_seconds",
			Help:    "Time spent waiting on the per-host limiter before a page load.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"host"})
		if err := cfg.Registerer.Register(l.delay); err != nil {
			return nil, fmt.Errorf("register politeness histogram: %w", err)
		}
	}
	return l, nil
}

// Wait blocks until rawURL's host may be loaded again or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	limiter := l.forHost(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if l.delay != nil {
		if waited := time.Since(start); waited > time.Millisecond {
			l.delay.WithLabelValues(host).Observe(waited.Seconds())
		}
	}
	return nil
}

// Hosts returns how many hosts have a bucket.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
