// Package resilience holds the fault tolerance patterns shared by the upstream
// fetcher, the webhook notifiers and the seen store.
//
// Circuit breakers wrap gobreaker with presets per dependency. Retry policies
// use exponential backoff with jitter and honor Retry-After hints.
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.UpstreamConfig())
//	err := cb.Run(func() error {
//	    return fetchOnce(ctx)
//	})
//
//	policy := retry.NewPolicy("notify", retry.NotifyConfig(3), retry.IsRetryable)
//	err = policy.Do(ctx, func(ctx context.Context, attempt int) error {
//	    return send(ctx)
//	})
package resilience
