package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"statuswatch/internal/domain/entity"
	"statuswatch/internal/resilience/circuitbreaker"
)

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

const (
	KindTimeout   FetchErrorKind = "timeout"
	KindTransport FetchErrorKind = "transport"
	KindMalformed FetchErrorKind = "malformed"
	KindBlocked   FetchErrorKind = "blocked"
)

// FetchError is returned by every fetcher and transport in this package.
type FetchError struct {
	Kind FetchErrorKind
	Op   string
	// StatusCode is the upstream HTTP status, 0 when no response was received.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: %s (HTTP %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrorKind returns Kind as a plain string for logs and metrics.
func (e *FetchError) ErrorKind() string { return string(e.Kind) }

// Is makes every FetchError match entity.ErrFetch.
func (e *FetchError) Is(target error) bool {
	return target == entity.ErrFetch
}

// IsRetryable reports whether a fetch failure is worth another attempt within the tick.
// Timeouts and transport failures are; blocked, malformed, cancellation and an open
// circuit breaker are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || circuitbreaker.IsRejected(err) {
		return false
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == KindTimeout || fe.Kind == KindTransport
}

// requestError classifies a failure to get any response at all.
func requestError(op string, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, Op: op, Err: err}
	}
	return &FetchError{Kind: KindTransport, Op: op, Err: err}
}

// statusError classifies a non-2xx response. 408 and 5xx are transient;
// every other 4xx, 429 included, means the upstream refused us and another
// attempt within the same tick would only make that worse.
func statusError(op string, code int, body []byte) *FetchError {
	err := fmt.Errorf("%s: %s", http.StatusText(code), snippet(body))
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return &FetchError{Kind: KindTimeout, Op: op, StatusCode: code, Err: err}
	case code >= 500:
		return &FetchError{Kind: KindTransport, Op: op, StatusCode: code, Err: err}
	default:
		return &FetchError{Kind: KindBlocked, Op: op, StatusCode: code, Err: err}
	}
}

func malformed(op string, err error) *FetchError {
	return &FetchError{Kind: KindMalformed, Op: op, Err: err}
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
