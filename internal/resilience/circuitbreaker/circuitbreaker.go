// Package circuitbreaker guards the relay's collaborators with github.com/sony/gobreaker.
// A dead upstream, webhook or database fails fast instead of eating the whole
// retry budget on every tick.
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"statuswatch/internal/observability/metrics"
)

// Config holds the settings of one breaker.
type Config struct {
	// Name labels log entries and the breaker state gauge
	Name string

	// MaxRequests is the number of trial calls let through while half-open
	MaxRequests uint32

	// Interval is the closed-state window after which counts are cleared
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open
	Timeout time.Duration

	// FailureThreshold is the failure ratio that trips the breaker (0.6 = 60%)
	FailureThreshold float64

	// MinRequests is the number of calls in the window before the ratio is considered
	MinRequests uint32
}

// UpstreamConfig is the preset for the upstream post source.
// The upstream is polled every few minutes, so counts are kept for a longer
// window and the open state lasts long enough to skip a couple of ticks.
func UpstreamConfig() Config {
	return Config{
		Name:             "upstream",
		MaxRequests:      1,
		Interval:         30 * time.Minute,
		Timeout:          10 * time.Minute,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// WebhookConfig is the preset for a notification webhook.
func WebhookConfig(channel string) Config {
	return Config{
		Name:             "webhook-" + channel,
		MaxRequests:      2,
		Interval:         10 * time.Minute,
		Timeout:          2 * time.Minute,
		FailureThreshold: 0.7,
		MinRequests:      5,
	}
}

// DBConfig is the preset for the seen store: it opens only when every one of
// at least 5 statements in a minute failed.
func DBConfig() Config {
	return Config{
		Name:             "database",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 1.0,
		MinRequests:      5,
	}
}

// CircuitBreaker is a named gobreaker.CircuitBreaker.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New creates a breaker from cfg.
// Context cancellation is not counted as a failure of the protected service.
func New(cfg Config) *CircuitBreaker {
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &CircuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
	}
}

// Do runs fn through cb and returns its typed result.
// An open breaker returns gobreaker.ErrOpenState without calling fn.
func Do[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}

// Run is Do for calls that only report an error.
func (cb *CircuitBreaker) Run(fn func() error) error {
	_, err := cb.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsRejected reports whether err came from the breaker refusing the call
// rather than from the protected function.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
