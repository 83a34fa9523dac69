// Package ratelimit implements token buckets that keep model calls under the API quota.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/telemetry"
)

// Limiter manages one bucket per model operation so a burst of chat messages
// cannot starve spider generation.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	PerMinute float64
	Burst     int
}

// New creates a new Limiter. A non-positive PerMinute disables limiting.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.PerMinute / 60)
	if cfg.PerMinute <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for operation, respecting the context.
// It fails immediately when the context deadline is sooner than the next token.
func (l *Limiter) Wait(ctx context.Context, operation string) error {
	if operation == "" {
		operation = "unknown"
	}
	l.mu.Lock()
	limiter, exists := l.limiters[operation]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[operation] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		telemetry.ObserveRateLimitDelay(operation, d)
	}
	return nil
}
