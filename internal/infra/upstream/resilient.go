package upstream

import (
	"context"
	"log/slog"

	"statuswatch/internal/domain/entity"
	"statuswatch/internal/resilience/circuitbreaker"
	"statuswatch/internal/resilience/retry"
)

// Fetcher returns a handle's recent posts, newest first.
type Fetcher interface {
	Fetch(ctx context.Context, handle string) ([]entity.Post, error)
}

// ResilientFetcher adds retry with backoff and a circuit breaker around a Fetcher.
type ResilientFetcher struct {
	inner   Fetcher
	policy  retry.Policy
	breaker *circuitbreaker.CircuitBreaker
}

// NewResilientFetcher wraps inner. Each attempt passes through the breaker; a
// rejected attempt ends the retries.
func NewResilientFetcher(inner Fetcher, maxAttempts int, breaker *circuitbreaker.CircuitBreaker) *ResilientFetcher {
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.UpstreamConfig())
	}
	return &ResilientFetcher{
		inner:   inner,
		policy:  retry.NewPolicy("upstream-fetch", retry.UpstreamFetchConfig(maxAttempts), IsRetryable),
		breaker: breaker,
	}
}

func (f *ResilientFetcher) Fetch(ctx context.Context, handle string) ([]entity.Post, error) {
	var posts []entity.Post

	err := f.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		result, err := circuitbreaker.Do(f.breaker, func() ([]entity.Post, error) {
			return f.inner.Fetch(ctx, handle)
		})
		if err != nil {
			if circuitbreaker.IsRejected(err) {
				slog.Warn("upstream circuit breaker open, request rejected",
					slog.String("service", f.breaker.Name()),
					slog.String("account", handle),
					slog.String("state", f.breaker.State().String()))
				return &FetchError{Kind: KindTransport, Op: "circuit breaker", Err: err}
			}
			return err
		}
		posts = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}
