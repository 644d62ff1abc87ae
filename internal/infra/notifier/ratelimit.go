package notifier

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a minimum delay between consecutive sends.
// It is a token bucket with a burst of one, so the first send goes out
// immediately and each later one waits until the interval has passed.
type RateLimiter struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// NewRateLimiter creates a limiter with the given minimum interval.
// A zero or negative interval disables limiting.
//
// Example:
//
//	limiter := NewRateLimiter(2 * time.Second) // at most one send every 2s
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &RateLimiter{
		interval: minInterval,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Allow blocks until a send is permitted or the context is canceled.
// It should be called before making a rate-limited request.
func (r *RateLimiter) Allow(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Interval returns the configured minimum interval.
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}
