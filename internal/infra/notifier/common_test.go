package notifier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"

	"statuswatch/internal/domain/entity"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &ServerError{StatusCode: 502, Message: "bad gateway"}, true},
		{"rate limit", &RateLimitError{Wait: time.Second}, true},
		{"network", errors.New("connection reset"), true},
		{"client error", &ClientError{StatusCode: 400, Message: "bad"}, false},
		{"wrapped client error", fmt.Errorf("send: %w", &ClientError{StatusCode: 401}), false},
		{"canceled", context.Canceled, false},
		{"breaker open", gobreaker.ErrOpenState, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestRateLimitError_RetryAfter(t *testing.T) {
	err := &RateLimitError{Wait: 2 * time.Second, Message: "Discord rate limit exceeded"}

	assert.Equal(t, 2*time.Second, err.RetryAfter())
	assert.Equal(t, "Discord rate limit exceeded (retry after 2s)", err.Error())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   NotifyErrorKind
		wantStatus int
	}{
		{"rate limited", fmt.Errorf("max retry attempts (3) exceeded: %w", &RateLimitError{}), KindRateLimited, 429},
		{"rejected", &ClientError{StatusCode: 403}, KindRejected, 403},
		{"server", &ServerError{StatusCode: 503}, KindTransport, 503},
		{"network", errors.New("dial tcp: refused"), KindTransport, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ne := classify("discord", tt.err)

			assert.Equal(t, tt.wantKind, ne.Kind)
			assert.Equal(t, tt.wantStatus, ne.StatusCode)
			assert.ErrorIs(t, ne, entity.ErrNotify)
			assert.ErrorIs(t, ne, tt.err)
		})
	}
}

func TestTruncateSummary(t *testing.T) {
	assert.Equal(t, "short", truncateSummary("short", 10, "..."))
	assert.Equal(t, "abcdefg...", truncateSummary("abcdefghijklmnop", 10, "..."))
	assert.Equal(t, "...", truncateSummary("abcdef", 2, "..."))
}

// kindOf returns the kind of the NotifyError in err's chain, or "".
func kindOf(err error) NotifyErrorKind {
	var ne *NotifyError
	if errors.As(err, &ne) {
		return ne.Kind
	}
	return ""
}
