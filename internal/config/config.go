// Package config loads and validates the statuswatch process configuration.
//
// Sources, highest precedence first:
//  1. process environment
//  2. a .env file in the working directory (godotenv)
//  3. an optional YAML file whose keys are the environment variable names
//
// Required settings are validated strictly and every violation is reported in one
// *Error. Tunables (poll interval, retry counts, send spacing) are loaded fail-open:
// a bad value falls back to its default with a warning.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	pkgconfig "statuswatch/internal/pkg/config"
)

// Fetch modes accepted by FETCH_MODE.
const (
	FetchModeAPI = "api"
	FetchModeRSS = "rss"
)

// Proxy modes accepted by PROXY_MODE.
const (
	ProxyDirect       = "direct"
	ProxyScrapeOps    = "scrapeops"
	ProxyFlareSolverr = "flaresolverr"
)

// Notification channels accepted by NOTIFY_CHANNEL.
const (
	ChannelDiscord = "discord"
	ChannelSlack   = "slack"
)

// webhookHosts lists the hosts a WEBHOOK_URL may point at, per channel.
var webhookHosts = map[string][]string{
	ChannelDiscord: {"discord.com", "discordapp.com"},
	ChannelSlack:   {"hooks.slack.com"},
}

// Tunable bounds.
const (
	MinPollInterval   = 10 * time.Second
	MaxPollInterval   = 24 * time.Hour
	MinRetries        = 1
	MaxRetries        = 10
	MaxNotifyInterval = time.Minute
	MaxReadyFailures  = 1000
)

// ErrInvalidConfig is matched by every *Error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Error lists every problem found while validating a Config.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Problems, "; "))
}

// Is matches ErrInvalidConfig.
func (e *Error) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Config is the validated configuration passed to every constructor.
type Config struct {
	// Account is the monitored handle without a leading "@".
	Account string

	Upstream UpstreamConfig
	Notify   NotifyConfig
	Poll     PollConfig

	// DatabaseURL selects the seen store: postgres://, sqlite:, file: or a path.
	DatabaseURL string

	// LogLevel is debug, info, warn or error.
	LogLevel string

	// LogFormat is json or text.
	LogFormat string

	// HealthPort serves /health and /health/ready. 0 disables the server.
	HealthPort int

	// MetricsPort serves /metrics. 0 disables the server.
	MetricsPort int

	// ReadyMaxFailures is the number of failed ticks in a row after which
	// /health/ready reports 503. Default: 5
	ReadyMaxFailures int
}

// UpstreamConfig selects how posts are fetched.
type UpstreamConfig struct {
	// Instance is the host of the Mastodon-compatible server.
	// Default: "truthsocial.com"
	Instance string

	// FetchMode is api or rss. Default: api
	FetchMode string

	// ProxyMode is direct, scrapeops or flaresolverr. Default: scrapeops
	ProxyMode string

	ScrapeOpsAPIKey  string
	ScrapeOpsCountry string
	FlareSolverrHost string
	FlareSolverrPort int

	// HTTPProxyURL is an optional forward proxy used in direct mode.
	HTTPProxyURL string

	// RequestTimeout bounds each HTTP request. Default: 30s
	RequestTimeout time.Duration

	// MaxRetries is the number of fetch attempts per tick (1-10). Default: 3
	MaxRetries int

	IncludeReplies bool
	IncludeReblogs bool
}

// NotifyConfig configures the downstream channel.
type NotifyConfig struct {
	// Enabled selects the webhook notifier; when false posts are only logged.
	Enabled bool

	// Channel is discord or slack. Default: discord
	Channel string

	WebhookURL string

	// Username overrides the Discord webhook display name.
	Username string

	// PostLabel is the word used in message headers ("New Post from ...").
	PostLabel string

	// Timezone renders the "Posted at" footer. Default: UTC
	Timezone string

	// MaxRetries is the number of send attempts per post (1-10). Default: 3
	MaxRetries int

	// MinInterval is the minimum spacing between two sends (0-1m). Default: 2s
	MinInterval time.Duration
}

// PollConfig configures the sleep between ticks.
type PollConfig struct {
	// Interval is the fixed sleep (10s-24h). Default: 5m
	Interval time.Duration

	// Schedule is an optional cron expression that overrides Interval.
	Schedule string
}

// Default returns a Config with every optional setting at its default.
func Default() Config {
	return Config{
		Upstream: UpstreamConfig{
			Instance:         "truthsocial.com",
			FetchMode:        FetchModeAPI,
			ProxyMode:        ProxyScrapeOps,
			ScrapeOpsCountry: "us",
			FlareSolverrHost: "localhost",
			FlareSolverrPort: 8191,
			RequestTimeout:   30 * time.Second,
			MaxRetries:       3,
		},
		Notify: NotifyConfig{
			Enabled:     true,
			Channel:     ChannelDiscord,
			Username:    "Status Relay",
			PostLabel:   "post",
			Timezone:    "UTC",
			MaxRetries:  3,
			MinInterval: 2 * time.Second,
		},
		Poll: PollConfig{
			Interval: 5 * time.Minute,
		},
		LogLevel:         "info",
		LogFormat:        "json",
		HealthPort:       9091,
		MetricsPort:      9090,
		ReadyMaxFailures: 5,
	}
}

// Location returns the footer timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Notify.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks the settings that have no safe default.
// All problems are collected into one *Error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Account == "" {
		add("ACCOUNT_HANDLE is required")
	} else if strings.ContainsAny(c.Account, " /?#") {
		add("ACCOUNT_HANDLE '%s' is not a valid handle", c.Account)
	}
	if c.DatabaseURL == "" {
		add("DATABASE_URL is required")
	}
	if !validInstance(c.Upstream.Instance) {
		add("UPSTREAM_INSTANCE must be a host name or a base URL, got '%s'", c.Upstream.Instance)
	}

	if err := pkgconfig.ValidateOneOf(c.Upstream.FetchMode, FetchModeAPI, FetchModeRSS); err != nil {
		add("FETCH_MODE: %v", err)
	}
	switch c.Upstream.ProxyMode {
	case ProxyScrapeOps:
		if c.Upstream.ScrapeOpsAPIKey == "" {
			add("SCRAPEOPS_API_KEY is required when PROXY_MODE=scrapeops")
		}
	case ProxyFlareSolverr:
		if c.Upstream.FlareSolverrHost == "" {
			add("FLARESOLVERR_ADDRESS is required when PROXY_MODE=flaresolverr")
		}
		if err := pkgconfig.ValidateIntRange(c.Upstream.FlareSolverrPort, 1, 65535); err != nil {
			add("FLARESOLVERR_PORT: %v", err)
		}
	case ProxyDirect:
	default:
		add("PROXY_MODE: %v", pkgconfig.ValidateOneOf(c.Upstream.ProxyMode, ProxyDirect, ProxyScrapeOps, ProxyFlareSolverr))
	}

	if c.Notify.Enabled {
		hosts, ok := webhookHosts[c.Notify.Channel]
		switch {
		case !ok:
			add("NOTIFY_CHANNEL: %v", pkgconfig.ValidateOneOf(c.Notify.Channel, ChannelDiscord, ChannelSlack))
		case c.Notify.WebhookURL == "":
			add("WEBHOOK_URL is required when notifications are enabled")
		default:
			if err := pkgconfig.ValidateHTTPSURL(c.Notify.WebhookURL, hosts...); err != nil {
				add("WEBHOOK_URL: %v", err)
			}
		}
	}

	if err := pkgconfig.ValidatePort(c.HealthPort); err != nil {
		add("WORKER_HEALTH_PORT: %v", err)
	}
	if err := pkgconfig.ValidatePort(c.MetricsPort); err != nil {
		add("METRICS_PORT: %v", err)
	}
	if c.HealthPort != 0 && c.HealthPort == c.MetricsPort {
		add("WORKER_HEALTH_PORT and METRICS_PORT must differ, both are %d", c.HealthPort)
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// validInstance accepts "host[:port]" or "scheme://host[:port]".
func validInstance(instance string) bool {
	if instance == "" {
		return false
	}
	if strings.Contains(instance, "://") {
		u, err := url.Parse(instance)
		return err == nil && u.Host != "" && (u.Path == "" || u.Path == "/")
	}
	return !strings.ContainsAny(instance, "/?# ")
}

// LogValue hides secrets when the config is logged.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("account", c.Account),
		slog.String("instance", c.Upstream.Instance),
		slog.String("fetch_mode", c.Upstream.FetchMode),
		slog.String("proxy_mode", c.Upstream.ProxyMode),
		slog.Bool("notify_enabled", c.Notify.Enabled),
		slog.String("notify_channel", c.Notify.Channel),
		slog.Duration("poll_interval", c.Poll.Interval),
		slog.String("poll_schedule", c.Poll.Schedule),
		slog.Duration("notify_min_interval", c.Notify.MinInterval),
		slog.Bool("include_replies", c.Upstream.IncludeReplies),
		slog.Bool("include_reblogs", c.Upstream.IncludeReblogs),
	)
}
