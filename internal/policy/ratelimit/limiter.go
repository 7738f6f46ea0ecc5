// Package ratelimit spaces out consecutive requests to the same host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/equipment-crawler/internal/metrics"
)

// Limiter holds one token bucket per host. A host's interval is the
// minimum gap between two requests to it.
type Limiter struct {
	mu              sync.Mutex
	limiters        map[string]*rate.Limiter
	intervals       map[string]time.Duration
	defaultInterval time.Duration
}

// Config holds rate limiter configuration.
type Config struct {
	// DefaultInterval applies to hosts without an explicit interval. Zero
	// disables limiting for them.
	DefaultInterval time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		limiters:        make(map[string]*rate.Limiter),
		intervals:       make(map[string]time.Duration),
		defaultInterval: cfg.DefaultInterval,
	}
}

// SetInterval configures the gap for a host. It replaces any bucket
// already created for that host.
func (l *Limiter) SetInterval(host string, interval time.Duration) {
	host = strings.ToLower(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.intervals[host] = interval
	delete(l.limiters, host)
}

// Wait blocks until a request to rawURL's host may proceed, respecting ctx.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	limiter := l.limiterFor(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	interval, ok := l.intervals[host]
	if !ok {
		interval = l.defaultInterval
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	limiter := rate.NewLimiter(limit, 1)
	l.limiters[host] = limiter
	return limiter
}
