package notifier

import (
	"context"
	"log/slog"

	"statuswatch/internal/domain/entity"
)

// NoOpNotifier is used when notifications are disabled.
// It logs the message it would have sent and reports success, so posts are
// still marked seen and the relay does not replay them once sending is enabled.
type NoOpNotifier struct {
	formatter MessageFormatter
}

// NewNoOpNotifier creates a new NoOpNotifier instance.
func NewNoOpNotifier(formatter MessageFormatter) *NoOpNotifier {
	return &NoOpNotifier{formatter: formatter}
}

// Channel implements Notifier.
func (n *NoOpNotifier) Channel() string { return "noop" }

// Send logs the rendered message and returns nil.
func (n *NoOpNotifier) Send(ctx context.Context, post entity.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Info("notification disabled, message not sent",
		slog.String("post_id", post.ID),
		slog.String("message", n.formatter.Discord(post)))
	return nil
}
