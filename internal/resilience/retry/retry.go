// Package retry provides retry logic with exponential backoff and jitter.
// A Policy bundles the backoff schedule with a retryable-error predicate so the
// upstream fetcher, the notifiers and the database opener share one implementation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first one
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// Multiplier is the multiplier for exponential backoff
	Multiplier float64

	// JitterFraction is the fraction of delay to add as random jitter (0.0 to 1.0)
	JitterFraction float64
}

// UpstreamFetchConfig returns configuration for fetching the upstream post feed.
// Proxies in front of the upstream fail transiently often, so the first retry is quick.
func UpstreamFetchConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:    maxAttempts,
		InitialDelay:   2 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// NotifyConfig returns configuration for webhook deliveries.
func NotifyConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:    maxAttempts,
		InitialDelay:   5 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// DBConfig is used when opening the seen store at start, while a database
// container may still be accepting connections.
func DBConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// RetryAfterer is implemented by errors that carry a server-provided wait,
// such as a 429 response with retry_after. The wait replaces the backoff delay.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// Policy is a retry schedule plus the predicate deciding which errors are transient.
type Policy struct {
	Config

	// Name identifies the collaborator in log entries
	Name string

	// Retryable reports whether an error is worth retrying. Defaults to IsRetryable.
	Retryable func(error) bool
}

// NewPolicy creates a named policy with the given schedule and predicate.
func NewPolicy(name string, cfg Config, retryable func(error) bool) Policy {
	return Policy{Config: cfg, Name: name, Retryable: retryable}
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts are
// exhausted, or ctx is done. fn receives the 1-based attempt number.
// Non-retryable errors are returned as-is; exhaustion wraps the last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	delay := p.InitialDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)

		if lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					slog.String("operation", p.Name),
					slog.Int("attempt", attempt))
			}
			return nil
		}

		if !retryable(lastErr) {
			slog.Warn("non-retryable error, aborting",
				slog.String("operation", p.Name),
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr))
			return lastErr
		}

		// Don't wait after last attempt
		if attempt == maxAttempts {
			break
		}

		wait := delay
		var ra RetryAfterer
		if errors.As(lastErr, &ra) && ra.RetryAfter() > 0 {
			wait = ra.RetryAfter()
		}

		slog.Warn("operation failed, retrying",
			slog.String("operation", p.Name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", wait),
			slog.Any("error", lastErr))

		if err := Sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry aborted after attempt %d: %w", attempt, err)
		}

		// Calculate next delay with exponential backoff
		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}

		// Add jitter to prevent thundering herd
		delay = addJitter(delay, p.JitterFraction)
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", maxAttempts, lastErr)
}

// WithBackoff runs fn under cfg with IsRetryable as the predicate.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	return Policy{Config: cfg}.Do(ctx, func(context.Context, int) error { return fn() })
}

// Sleep waits for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the wait was cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryable is the default predicate: it accepts network timeouts and the
// connection-level errors a restarting peer produces. Context errors never retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH)
}

// addJitter adds up to jitterFraction of duration as random jitter.
func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}
	// #nosec G404 -- backoff jitter does not need cryptographic randomness.
	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	return duration + jitter
}
