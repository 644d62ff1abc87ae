// Package notifier delivers new posts to a downstream channel.
// The Notifier interface lets Discord, Slack and the no-op notifier be swapped
// through configuration; all of them share one rate limiter, retry policy and
// error taxonomy.
package notifier

import (
	"context"
	"fmt"

	"statuswatch/internal/domain/entity"
)

// Notifier sends one externally visible message per post.
type Notifier interface {
	// Send delivers post. It returns nil only when the channel accepted the
	// message; failures after all retries are *NotifyError.
	Send(ctx context.Context, post entity.Post) error

	// Channel names the destination for logs and metrics.
	Channel() string
}

// NotifyErrorKind classifies delivery failures.
type NotifyErrorKind string

const (
	KindRateLimited NotifyErrorKind = "rate-limited"
	KindTransport   NotifyErrorKind = "transport"
	KindRejected    NotifyErrorKind = "rejected"
)

// NotifyError is the terminal error of a failed Send.
type NotifyError struct {
	Kind       NotifyErrorKind
	Channel    string
	StatusCode int
	Err        error
}

func (e *NotifyError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("notify %s: %s (HTTP %d): %v", e.Channel, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("notify %s: %s: %v", e.Channel, e.Kind, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// ErrorKind returns Kind as a plain string for logs and metrics.
func (e *NotifyError) ErrorKind() string { return string(e.Kind) }

// Is makes every NotifyError match entity.ErrNotify.
func (e *NotifyError) Is(target error) bool {
	return target == entity.ErrNotify
}
