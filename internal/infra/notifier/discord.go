package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"statuswatch/internal/domain/entity"
	"statuswatch/internal/resilience/retry"
)

// DiscordConfig contains configuration for Discord webhook notifications.
type DiscordConfig struct {
	// WebhookURL is the Discord webhook URL (includes authentication token)
	WebhookURL string

	// Username overrides the webhook's display name
	Username string

	// Formatter renders the message text
	Formatter MessageFormatter

	// Timeout is the HTTP request timeout for Discord API calls and media downloads
	Timeout time.Duration

	// MinInterval is the minimum delay between two sends
	MinInterval time.Duration

	// Retry is the backoff schedule for failed sends. Zero means retry.NotifyConfig(3).
	Retry retry.Config

	// MaxMediaBytes caps each downloaded attachment. Zero means DefaultMaxMediaBytes.
	MaxMediaBytes int64

	// ValidateMediaURL guards media downloads. Defaults to entity.ValidateMediaURL.
	ValidateMediaURL func(string) error
}

// DiscordNotifier sends post notifications to Discord via webhook.
type DiscordNotifier struct {
	config     DiscordConfig
	httpClient *http.Client
	media      mediaDownloader
	delivery   delivery
}

// NewDiscordNotifier creates a new DiscordNotifier with the specified configuration.
//
// The notifier is initialized with:
//   - HTTP client with configured timeout
//   - Rate limiter allowing one send per MinInterval (burst of 1)
//   - Retry policy honouring Discord's retry_after on 429
//   - Circuit breaker "webhook-discord"
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.NotifyConfig(3)
	}
	if config.MaxMediaBytes <= 0 {
		config.MaxMediaBytes = DefaultMaxMediaBytes
	}
	if config.ValidateMediaURL == nil {
		config.ValidateMediaURL = entity.ValidateMediaURL
	}

	client := &http.Client{Timeout: config.Timeout}
	return &DiscordNotifier{
		config:     config,
		httpClient: client,
		media: mediaDownloader{
			client:   client,
			maxBytes: config.MaxMediaBytes,
			validate: config.ValidateMediaURL,
		},
		delivery: newDelivery("discord", config.MinInterval, config.Retry),
	}
}

// Channel implements Notifier.
func (d *DiscordNotifier) Channel() string { return "discord" }

// DiscordWebhookPayload represents the JSON payload sent to Discord webhook.
type DiscordWebhookPayload struct {
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
}

// DiscordErrorResponse represents the error response from Discord API.
type DiscordErrorResponse struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"` // In seconds
}

// Send renders post, downloads its media once before the first attempt, and
// delivers both in a single webhook message. Retries reuse the downloaded files.
func (d *DiscordNotifier) Send(ctx context.Context, post entity.Post) error {
	payload := DiscordWebhookPayload{
		Username: d.config.Username,
		Content:  d.config.Formatter.Discord(post),
	}

	var files []attachment
	download := func(ctx context.Context) { files = d.media.downloadAll(ctx, post) }
	return d.delivery.run(ctx, post.ID, download, func(ctx context.Context) error {
		return d.sendWebhookRequest(ctx, payload, files)
	})
}

// sendWebhookRequest posts one message. Without files the body is plain JSON;
// with files it is multipart/form-data carrying payload_json and files[n].
//
// Error types:
//   - 429: Rate limit error (retryable, contains retry_after duration)
//   - 4xx (non-429): Client error (non-retryable)
//   - 5xx: Server error (retryable)
//   - Network error: Connection/timeout error (retryable)
func (d *DiscordNotifier) sendWebhookRequest(ctx context.Context, payload DiscordWebhookPayload, files []attachment) error {
	body, contentType, err := encodeDiscordBody(payload, files)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.WebhookURL, body)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Read response body for error messages
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return statusToError("Discord", resp, respBody, func() time.Duration {
		return extractRetryAfter(resp, respBody)
	})
}

func encodeDiscordBody(payload DiscordWebhookPayload, files []attachment) (io.Reader, string, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal webhook payload: %w", err)
	}
	if len(files) == 0 {
		return bytes.NewReader(jsonData), "application/json", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("payload_json", string(jsonData)); err != nil {
		return nil, "", fmt.Errorf("write payload_json: %w", err)
	}
	for i, f := range files {
		part, err := w.CreateFormFile(fmt.Sprintf("files[%d]", i), f.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// extractRetryAfter extracts retry_after duration from Discord error response.
// It tries to parse from JSON body first, then falls back to Retry-After header.
//
// Returns:
//   - time.Duration: Retry after duration (default 5s if not found)
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var discordErr DiscordErrorResponse
	if err := json.Unmarshal(body, &discordErr); err == nil && discordErr.RetryAfter > 0 {
		return time.Duration(discordErr.RetryAfter * float64(time.Second))
	}
	if d, ok := retryAfterHeader(resp); ok {
		return d
	}
	return defaultRetryAfter
}
