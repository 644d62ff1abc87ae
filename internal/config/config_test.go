package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgconfig "statuswatch/internal/pkg/config"
)

var allKeys = []string{
	"ACCOUNT_HANDLE", "UPSTREAM_INSTANCE", "FETCH_MODE", "PROXY_MODE",
	"SCRAPEOPS_API_KEY", "SCRAPEOPS_COUNTRY", "FLARESOLVERR_ADDRESS", "FLARESOLVERR_PORT",
	"HTTP_PROXY_URL", "DATABASE_URL", "NOTIFY_ENABLED", "NOTIFY_CHANNEL", "WEBHOOK_URL",
	"WEBHOOK_USERNAME", "POST_LABEL", "DISPLAY_TIMEZONE", "POLL_INTERVAL", "POLL_SCHEDULE",
	"REQUEST_TIMEOUT", "FETCH_MAX_RETRIES", "NOTIFY_MAX_RETRIES", "NOTIFY_MIN_INTERVAL",
	"INCLUDE_REPLIES", "INCLUDE_REBLOGS", "LOG_LEVEL", "LOG_FORMAT",
	"WORKER_HEALTH_PORT", "METRICS_PORT", "READY_MAX_FAILURES",
}

// clearEnv unsets every configuration variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func setValidEnv(t *testing.T) {
	t.Helper()
	clearEnv(t)
	t.Setenv("ACCOUNT_HANDLE", "@realuser")
	t.Setenv("DATABASE_URL", "sqlite::memory:")
	t.Setenv("SCRAPEOPS_API_KEY", "key-123")
	t.Setenv("WEBHOOK_URL", "https://discord.com/api/webhooks/1/abc")
}

func load(t *testing.T, opts LoadOptions) (*Config, error) {
	t.Helper()
	if opts.EnvFiles == nil {
		opts.EnvFiles = []string{}
	}
	return Load(opts)
}

func TestLoad_Defaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := load(t, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "realuser", cfg.Account, "leading @ is stripped")
	assert.Equal(t, "truthsocial.com", cfg.Upstream.Instance)
	assert.Equal(t, FetchModeAPI, cfg.Upstream.FetchMode)
	assert.Equal(t, ProxyScrapeOps, cfg.Upstream.ProxyMode)
	assert.Equal(t, "us", cfg.Upstream.ScrapeOpsCountry)
	assert.Equal(t, 30*time.Second, cfg.Upstream.RequestTimeout)
	assert.Equal(t, 3, cfg.Upstream.MaxRetries)
	assert.False(t, cfg.Upstream.IncludeReplies)
	assert.False(t, cfg.Upstream.IncludeReblogs)
	assert.True(t, cfg.Notify.Enabled)
	assert.Equal(t, ChannelDiscord, cfg.Notify.Channel)
	assert.Equal(t, "Status Relay", cfg.Notify.Username)
	assert.Equal(t, 2*time.Second, cfg.Notify.MinInterval)
	assert.Equal(t, 5*time.Minute, cfg.Poll.Interval)
	assert.Empty(t, cfg.Poll.Schedule)
	assert.Equal(t, 9091, cfg.HealthPort)
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.Equal(t, 5, cfg.ReadyMaxFailures)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_Overrides(t *testing.T) {
	setValidEnv(t)
	t.Setenv("FETCH_MODE", "RSS")
	t.Setenv("PROXY_MODE", "direct")
	t.Setenv("NOTIFY_CHANNEL", "slack")
	t.Setenv("WEBHOOK_URL", "https://hooks.slack.com/services/T0/B0/XYZ")
	t.Setenv("POLL_INTERVAL", "90s")
	t.Setenv("POLL_SCHEDULE", "*/2 * * * *")
	t.Setenv("NOTIFY_MIN_INTERVAL", "0s")
	t.Setenv("INCLUDE_REPLIES", "yes")
	t.Setenv("DISPLAY_TIMEZONE", "America/New_York")

	cfg, err := load(t, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, FetchModeRSS, cfg.Upstream.FetchMode)
	assert.Equal(t, ProxyDirect, cfg.Upstream.ProxyMode)
	assert.Equal(t, ChannelSlack, cfg.Notify.Channel)
	assert.Equal(t, 90*time.Second, cfg.Poll.Interval)
	assert.Equal(t, "*/2 * * * *", cfg.Poll.Schedule)
	assert.Equal(t, time.Duration(0), cfg.Notify.MinInterval)
	assert.True(t, cfg.Upstream.IncludeReplies)
	assert.Equal(t, "America/New_York", cfg.Location().String())
}

func TestLoad_CollectsAllProblems(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_MODE", "atom")

	_, err := load(t, LoadOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{
		"ACCOUNT_HANDLE is required",
		"DATABASE_URL is required",
		"FETCH_MODE: 'atom' must be one of api, rss",
		"SCRAPEOPS_API_KEY is required when PROXY_MODE=scrapeops",
		"WEBHOOK_URL is required when notifications are enabled",
	}, cerr.Problems)
}

func TestValidate_Webhook(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		url     string
		enabled bool
		wantErr string
	}{
		{"discord ok", ChannelDiscord, "https://discord.com/api/webhooks/1/abc", true, ""},
		{"slack ok", ChannelSlack, "https://hooks.slack.com/services/T/B/X", true, ""},
		{"http rejected", ChannelDiscord, "http://discord.com/api/webhooks/1/abc", true, "must use https"},
		{"slack url on discord", ChannelDiscord, "https://hooks.slack.com/services/T/B/X", true, "is not one of"},
		{"unknown channel", "teams", "https://example.com", true, "NOTIFY_CHANNEL"},
		{"disabled skips checks", "teams", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Account = "user"
			cfg.DatabaseURL = "sqlite::memory:"
			cfg.Upstream.ProxyMode = ProxyDirect
			cfg.Notify.Enabled = tt.enabled
			cfg.Notify.Channel = tt.channel
			cfg.Notify.WebhookURL = tt.url

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_ProxyAndPorts(t *testing.T) {
	base := func() Config {
		cfg := Default()
		cfg.Account = "user"
		cfg.DatabaseURL = "postgres://localhost/relay"
		cfg.Notify.Enabled = false
		return cfg
	}

	cfg := base()
	cfg.Upstream.ProxyMode = ProxyFlareSolverr
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Upstream.ProxyMode = "tor"
	assert.ErrorContains(t, cfg.Validate(), "PROXY_MODE: 'tor' must be one of")

	cfg = base()
	cfg.Upstream.ProxyMode = ProxyDirect
	cfg.HealthPort = 9090
	assert.ErrorContains(t, cfg.Validate(), "must differ")

	cfg = base()
	cfg.Upstream.ProxyMode = ProxyDirect
	cfg.HealthPort, cfg.MetricsPort = 0, 0
	assert.NoError(t, cfg.Validate(), "both servers disabled")

	cfg = base()
	cfg.Upstream.ProxyMode = ProxyDirect
	cfg.Account = "bad/handle"
	assert.ErrorContains(t, cfg.Validate(), "not a valid handle")
}

func TestFromEnv_TunablesFailOpen(t *testing.T) {
	setValidEnv(t)
	t.Setenv("POLL_INTERVAL", "1s")
	t.Setenv("FETCH_MAX_RETRIES", "50")
	t.Setenv("NOTIFY_MAX_RETRIES", "zero")
	t.Setenv("NOTIFY_MIN_INTERVAL", "2m")
	t.Setenv("POLL_SCHEDULE", "whenever")
	t.Setenv("DISPLAY_TIMEZONE", "Nowhere/Land")
	t.Setenv("READY_MAX_FAILURES", "0")

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	metrics := pkgconfig.NewConfigMetricsWith(prometheus.NewRegistry(), "test")

	cfg := FromEnv(logger, metrics)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Minute, cfg.Poll.Interval)
	assert.Equal(t, 3, cfg.Upstream.MaxRetries)
	assert.Equal(t, 3, cfg.Notify.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Notify.MinInterval)
	assert.Empty(t, cfg.Poll.Schedule)
	assert.Equal(t, "UTC", cfg.Notify.Timezone)
	assert.Equal(t, 5, cfg.ReadyMaxFailures)

	for _, field := range []string{"poll_interval", "fetch_max_retries", "notify_max_retries",
		"notify_min_interval", "poll_schedule", "display_timezone", "ready_max_failures"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues(field)), field)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FallbackActive))
	assert.Contains(t, logs.String(), "Configuration fallback applied")
	assert.Contains(t, logs.String(), "Invalid POLL_INTERVAL='1s'")
}

func TestLoad_YAMLFile(t *testing.T) {
	setValidEnv(t)

	path := filepath.Join(t.TempDir(), "statuswatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
account_handle: fromfile
poll_interval: 45s
include-reblogs: true
notify_max_retries: 5
`), 0o600))

	cfg, err := load(t, LoadOptions{File: path})
	require.NoError(t, err)

	assert.Equal(t, "realuser", cfg.Account, "environment wins over the file")
	assert.Equal(t, 45*time.Second, cfg.Poll.Interval)
	assert.True(t, cfg.Upstream.IncludeReblogs)
	assert.Equal(t, 5, cfg.Notify.MaxRetries)
}

func TestLoad_YAMLFileErrors(t *testing.T) {
	setValidEnv(t)
	dir := t.TempDir()

	_, err := load(t, LoadOptions{File: filepath.Join(dir, "missing.yaml")})
	assert.ErrorContains(t, err, "read config file")

	nested := filepath.Join(dir, "nested.yaml")
	require.NoError(t, os.WriteFile(nested, []byte("upstream:\n  instance: x\n"), 0o600))
	_, err = load(t, LoadOptions{File: nested})
	assert.ErrorContains(t, err, "must be a scalar")
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite::memory:")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"ACCOUNT_HANDLE=dotenvuser\n"+
			"DATABASE_URL=postgres://ignored\n"+
			"PROXY_MODE=direct\n"+
			"NOTIFY_ENABLED=false\n"), 0o600))

	cfg, err := load(t, LoadOptions{EnvFiles: []string{path, filepath.Join(t.TempDir(), "absent.env")}})
	require.NoError(t, err)

	assert.Equal(t, "dotenvuser", cfg.Account)
	assert.Equal(t, "sqlite::memory:", cfg.DatabaseURL, "process environment wins over .env")
	assert.False(t, cfg.Notify.Enabled)
}

func TestConfig_LogValueHidesSecrets(t *testing.T) {
	cfg := Default()
	cfg.Account = "user"
	cfg.Upstream.ScrapeOpsAPIKey = "secret-key"
	cfg.Notify.WebhookURL = "https://discord.com/api/webhooks/1/secret-token"

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("config", slog.Any("config", &cfg))

	assert.Contains(t, buf.String(), `"account":"user"`)
	assert.NotContains(t, buf.String(), "secret")
}

func TestValidInstance(t *testing.T) {
	assert.True(t, validInstance("truthsocial.com"))
	assert.True(t, validInstance("localhost:3000"))
	assert.True(t, validInstance("http://127.0.0.1:8080"))
	assert.True(t, validInstance("https://social.example/"))
	assert.False(t, validInstance(""))
	assert.False(t, validInstance("social.example/api"))
	assert.False(t, validInstance("https://social.example/api/v1"))
	assert.False(t, validInstance("https://"))
}
