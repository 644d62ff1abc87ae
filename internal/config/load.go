package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	pkgconfig "statuswatch/internal/pkg/config"
)

// LoadOptions controls where Load reads settings from.
type LoadOptions struct {
	// File is an optional YAML file of KEY: value pairs.
	File string

	// EnvFiles are dotenv files loaded before File. Missing files are ignored.
	// Defaults to ".env".
	EnvFiles []string

	Logger  *slog.Logger
	Metrics *pkgconfig.ConfigMetrics
}

// Load applies the configured sources, reads the configuration and validates it.
// The returned error is either an I/O or parse error for the given files, or an
// *Error matching ErrInvalidConfig.
func Load(opts LoadOptions) (*Config, error) {
	if err := ApplySources(opts); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := FromEnv(logger, opts.Metrics)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplySources loads the dotenv files and the YAML file into the environment
// without overriding variables that are already set.
func ApplySources(opts LoadOptions) error {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	if opts.File != "" {
		return applyFile(opts.File)
	}
	return nil
}

// FromEnv builds a Config from the environment without validating required settings.
// Rejected tunables are logged and counted in metrics when it is non-nil.
func FromEnv(logger *slog.Logger, metrics *pkgconfig.ConfigMetrics) *Config {
	cfg := Default()
	fb := &fallbacks{logger: logger, metrics: metrics}

	cfg.Account = strings.TrimPrefix(pkgconfig.LoadEnvString("ACCOUNT_HANDLE", ""), "@")
	cfg.DatabaseURL = pkgconfig.LoadEnvString("DATABASE_URL", "")

	up := &cfg.Upstream
	up.Instance = pkgconfig.LoadEnvString("UPSTREAM_INSTANCE", up.Instance)
	up.FetchMode = strings.ToLower(pkgconfig.LoadEnvString("FETCH_MODE", up.FetchMode))
	up.ProxyMode = strings.ToLower(pkgconfig.LoadEnvString("PROXY_MODE", up.ProxyMode))
	up.ScrapeOpsAPIKey = pkgconfig.LoadEnvString("SCRAPEOPS_API_KEY", "")
	up.ScrapeOpsCountry = pkgconfig.LoadEnvString("SCRAPEOPS_COUNTRY", up.ScrapeOpsCountry)
	up.FlareSolverrHost = pkgconfig.LoadEnvString("FLARESOLVERR_ADDRESS", up.FlareSolverrHost)
	up.FlareSolverrPort = keep(fb, "flaresolverr_port",
		pkgconfig.LoadEnvInt("FLARESOLVERR_PORT", up.FlareSolverrPort, pkgconfig.ValidatePort))
	up.HTTPProxyURL = pkgconfig.LoadEnvString("HTTP_PROXY_URL", "")
	up.RequestTimeout = keep(fb, "request_timeout",
		pkgconfig.LoadEnvDuration("REQUEST_TIMEOUT", up.RequestTimeout, func(d time.Duration) error {
			return pkgconfig.ValidateDuration(d, time.Second, 5*time.Minute)
		}))
	up.MaxRetries = keep(fb, "fetch_max_retries",
		pkgconfig.LoadEnvInt("FETCH_MAX_RETRIES", up.MaxRetries, validateRetries))
	up.IncludeReplies = keep(fb, "include_replies", pkgconfig.LoadEnvBool("INCLUDE_REPLIES", false))
	up.IncludeReblogs = keep(fb, "include_reblogs", pkgconfig.LoadEnvBool("INCLUDE_REBLOGS", false))

	n := &cfg.Notify
	n.Enabled = keep(fb, "notify_enabled", pkgconfig.LoadEnvBool("NOTIFY_ENABLED", n.Enabled))
	n.Channel = strings.ToLower(pkgconfig.LoadEnvString("NOTIFY_CHANNEL", n.Channel))
	n.WebhookURL = pkgconfig.LoadEnvString("WEBHOOK_URL", "")
	n.Username = pkgconfig.LoadEnvString("WEBHOOK_USERNAME", n.Username)
	n.PostLabel = pkgconfig.LoadEnvString("POST_LABEL", n.PostLabel)
	n.Timezone = keep(fb, "display_timezone",
		pkgconfig.LoadEnvWithFallback("DISPLAY_TIMEZONE", n.Timezone, pkgconfig.ValidateTimezone))
	n.MaxRetries = keep(fb, "notify_max_retries",
		pkgconfig.LoadEnvInt("NOTIFY_MAX_RETRIES", n.MaxRetries, validateRetries))
	n.MinInterval = keep(fb, "notify_min_interval",
		pkgconfig.LoadEnvDuration("NOTIFY_MIN_INTERVAL", n.MinInterval, func(d time.Duration) error {
			return pkgconfig.ValidateDuration(d, 0, MaxNotifyInterval)
		}))

	cfg.Poll.Interval = keep(fb, "poll_interval",
		pkgconfig.LoadEnvDuration("POLL_INTERVAL", cfg.Poll.Interval, func(d time.Duration) error {
			return pkgconfig.ValidateDuration(d, MinPollInterval, MaxPollInterval)
		}))
	cfg.Poll.Schedule = keep(fb, "poll_schedule",
		pkgconfig.LoadEnvWithFallback("POLL_SCHEDULE", "", pkgconfig.ValidateCronSchedule))

	cfg.LogLevel = strings.ToLower(pkgconfig.LoadEnvString("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(pkgconfig.LoadEnvString("LOG_FORMAT", cfg.LogFormat))
	cfg.HealthPort = keep(fb, "health_port",
		pkgconfig.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, pkgconfig.ValidatePort))
	cfg.MetricsPort = keep(fb, "metrics_port",
		pkgconfig.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, pkgconfig.ValidatePort))
	cfg.ReadyMaxFailures = keep(fb, "ready_max_failures",
		pkgconfig.LoadEnvInt("READY_MAX_FAILURES", cfg.ReadyMaxFailures, func(v int) error {
			return pkgconfig.ValidateIntRange(v, 1, MaxReadyFailures)
		}))

	if metrics != nil {
		metrics.SetFallbackActive(fb.applied)
		metrics.RecordLoadTimestamp()
	}
	return &cfg
}

func validateRetries(v int) error {
	return pkgconfig.ValidateIntRange(v, MinRetries, MaxRetries)
}

// applyFile copies the YAML file's keys into the environment for every
// variable that is not already set.
func applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	for key, raw := range values {
		name := strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if os.Getenv(name) != "" {
			continue
		}
		var value string
		switch v := raw.(type) {
		case nil:
			continue
		case map[string]any, []any:
			return fmt.Errorf("parse config file %s: key %s must be a scalar", path, key)
		default:
			value = fmt.Sprint(v)
		}
		if err := os.Setenv(name, value); err != nil {
			return fmt.Errorf("set %s from config file: %w", name, err)
		}
	}
	return nil
}

// fallbacks logs and counts rejected tunables.
type fallbacks struct {
	logger  *slog.Logger
	metrics *pkgconfig.ConfigMetrics
	applied bool
}

func (f *fallbacks) record(field string, warnings []string) {
	f.applied = true
	if f.metrics != nil {
		f.metrics.RecordValidationError(field)
		f.metrics.RecordFallback(field)
	}
	for _, w := range warnings {
		f.logger.Warn("Configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", w))
	}
}

func keep[T any](f *fallbacks, field string, r pkgconfig.LoadResult[T]) T {
	if r.FallbackApplied {
		f.record(field, r.Warnings)
	}
	return r.Value
}
