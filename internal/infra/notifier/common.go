package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"statuswatch/internal/resilience/circuitbreaker"
	"statuswatch/internal/resilience/retry"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// defaultRetryAfter is used when a 429 carries no usable hint.
const defaultRetryAfter = 5 * time.Second

// Common webhook error types used by Discord and Slack notifiers

// RateLimitError represents a 429 rate limit error from a webhook service.
type RateLimitError struct {
	Wait    time.Duration
	Message string // Optional custom message
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.Wait)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.Wait)
}

// RetryAfter lets the retry policy wait exactly as long as the service asked.
func (e *RateLimitError) RetryAfter() time.Duration { return e.Wait }

// ClientError represents a 4xx client error from a webhook service.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError represents a 5xx server error from a webhook service.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// isRetryableError checks if the error is worth retrying: 5xx, 429 and network errors.
// Client errors (4xx other than 429), cancellation and an open breaker are final.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if circuitbreaker.IsRejected(err) {
		return false
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}

	// Server errors, rate limits, network errors, etc. are retryable
	return true
}

// classify maps the last attempt's error to a NotifyError.
func classify(channel string, err error) *NotifyError {
	ne := &NotifyError{Kind: KindTransport, Channel: channel, Err: err}

	var rateLimitErr *RateLimitError
	var clientErr *ClientError
	var serverErr *ServerError
	switch {
	case errors.As(err, &rateLimitErr):
		ne.Kind = KindRateLimited
		ne.StatusCode = http.StatusTooManyRequests
	case errors.As(err, &clientErr):
		ne.Kind = KindRejected
		ne.StatusCode = clientErr.StatusCode
	case errors.As(err, &serverErr):
		ne.StatusCode = serverErr.StatusCode
	}
	return ne
}

// statusToError converts a non-2xx webhook response into a typed error.
func statusToError(service string, resp *http.Response, body []byte, retryAfter func() time.Duration) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message: service + " rate limit exceeded",
			Wait:    retryAfter(),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API client error: %s", service, truncateSummary(string(body), 500, "...")),
		}
	case resp.StatusCode >= 500:
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API server error: %s", service, truncateSummary(string(body), 500, "...")),
		}
	default:
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}
}

// retryAfterHeader reads Retry-After in seconds.
func retryAfterHeader(resp *http.Response) (time.Duration, bool) {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.ParseFloat(v, 64); err == nil && seconds > 0 {
			return time.Duration(seconds * float64(time.Second)), true
		}
	}
	return 0, false
}

// delivery runs one Send: rate limiting, retries and the webhook breaker.
type delivery struct {
	channel string
	limiter *RateLimiter
	policy  retry.Policy
	breaker *circuitbreaker.CircuitBreaker
}

func newDelivery(channel string, minInterval time.Duration, rc retry.Config) delivery {
	return delivery{
		channel: channel,
		limiter: NewRateLimiter(minInterval),
		policy:  retry.NewPolicy(channel+"-webhook", rc, isRetryableError),
		breaker: circuitbreaker.New(circuitbreaker.WebhookConfig(channel)),
	}
}

// run calls prepare once and then attempt until it succeeds or the policy
// gives up. Every attempt waits for the limiter first, so a retried send
// still keeps its distance from the previous one. All attempts are logged
// with the same request_id.
func (d delivery) run(ctx context.Context, postID string, prepare func(ctx context.Context), attempt func(ctx context.Context) error) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	if prepare != nil {
		prepare(ctx)
	}

	err := d.policy.Do(ctx, func(ctx context.Context, n int) error {
		if err := d.limiter.Allow(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		err := d.breaker.Run(func() error { return attempt(ctx) })
		if err != nil {
			slog.Warn("webhook attempt failed",
				slog.String("channel", d.channel),
				slog.String("request_id", requestID),
				slog.String("post_id", postID),
				slog.Int("attempt", n),
				slog.Any("error", err))
			return err
		}
		slog.Info("notification delivered",
			slog.String("channel", d.channel),
			slog.String("request_id", requestID),
			slog.String("post_id", postID),
			slog.Int("attempt", n))
		return nil
	})
	if err != nil {
		return classify(d.channel, err)
	}
	return nil
}

// truncateSummary truncates text to maxLength characters.
// If truncated, appends suffix to indicate continuation.
func truncateSummary(text string, maxLength int, suffix string) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}

	// Reserve space for suffix
	truncateAt := maxLength - len([]rune(suffix))
	if truncateAt < 0 {
		truncateAt = 0
	}

	return string(runes[:truncateAt]) + suffix
}
