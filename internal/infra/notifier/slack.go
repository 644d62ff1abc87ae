package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"statuswatch/internal/domain/entity"
	"statuswatch/internal/resilience/retry"
)

// SlackConfig contains configuration for Slack webhook notifications.
type SlackConfig struct {
	// WebhookURL is the Slack Incoming Webhook URL (includes authentication token)
	WebhookURL string

	// Formatter renders the message text
	Formatter MessageFormatter

	// Timeout is the HTTP request timeout for Slack API calls
	Timeout time.Duration

	// MinInterval is the minimum delay between two sends
	MinInterval time.Duration

	// Retry is the backoff schedule for failed sends. Zero means retry.NotifyConfig(3).
	Retry retry.Config
}

// SlackNotifier sends post notifications to Slack via Incoming Webhook.
// Media are linked rather than uploaded; incoming webhooks cannot carry files.
type SlackNotifier struct {
	config     SlackConfig
	httpClient *http.Client
	delivery   delivery
}

// NewSlackNotifier creates a new SlackNotifier with the specified configuration.
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.NotifyConfig(3)
	}
	return &SlackNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		delivery: newDelivery("slack", config.MinInterval, config.Retry),
	}
}

// Channel implements Notifier.
func (s *SlackNotifier) Channel() string { return "slack" }

// SlackWebhookPayload represents the JSON payload sent to Slack webhook using Block Kit.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`   // Fallback text (required)
	Blocks []SlackBlock `json:"blocks"` // Rich formatting blocks
}

// SlackBlock represents a Slack Block Kit block.
type SlackBlock struct {
	Type string           `json:"type"`           // "section"
	Text *SlackTextObject `json:"text,omitempty"` // Text content (for section)
}

// SlackTextObject represents a text object in Slack Block Kit.
type SlackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"` // Actual text content
}

// maxFallbackLength keeps the push notification preview short.
const maxFallbackLength = 150

func (s *SlackNotifier) buildPayload(post entity.Post) SlackWebhookPayload {
	fallback := fmt.Sprintf("New %s from %s (@%s)", s.config.Formatter.label(), post.Account.Name(), post.Account.Username)
	return SlackWebhookPayload{
		Text: truncateSummary(fallback, maxFallbackLength, ellipsis),
		Blocks: []SlackBlock{{
			Type: "section",
			Text: &SlackTextObject{Type: "mrkdwn", Text: s.config.Formatter.Slack(post)},
		}},
	}
}

// Send implements Notifier.
func (s *SlackNotifier) Send(ctx context.Context, post entity.Post) error {
	payload := s.buildPayload(post)
	return s.delivery.run(ctx, post.ID, nil, func(ctx context.Context) error {
		return s.sendWebhookRequest(ctx, payload)
	})
}

// sendWebhookRequest posts one Block Kit message. Slack answers 429 with a
// Retry-After header in seconds.
func (s *SlackNotifier) sendWebhookRequest(ctx context.Context, payload SlackWebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	// Success (Slack returns "ok" as plain text on success)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return statusToError("Slack", resp, body, func() time.Duration {
		if d, ok := retryAfterHeader(resp); ok {
			return d
		}
		return defaultRetryAfter
	})
}
