package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateCronSchedule(t *testing.T) {
	valid := []string{"*/5 * * * *", "0 9-17 * * 1-5", "30 5 * * *", "@hourly", "@every 10m"}
	for _, s := range valid {
		assert.NoError(t, ValidateCronSchedule(s), s)
	}

	invalid := []string{"", "* * * *", "60 * * * *", "every minute", "@fortnightly"}
	for _, s := range invalid {
		assert.Error(t, ValidateCronSchedule(s), s)
	}

	err := ValidateCronSchedule("bad")
	assert.Contains(t, err.Error(), "invalid cron schedule 'bad'")
}

func TestValidateTimezone(t *testing.T) {
	for _, tz := range []string{"UTC", "America/New_York", "Asia/Tokyo"} {
		assert.NoError(t, ValidateTimezone(tz), tz)
	}
	assert.Error(t, ValidateTimezone(""))
	assert.Error(t, ValidateTimezone("Mars/Olympus"))
}

func TestValidateDuration(t *testing.T) {
	assert.NoError(t, ValidateDuration(time.Minute, 10*time.Second, time.Hour))
	assert.NoError(t, ValidateDuration(10*time.Second, 10*time.Second, time.Hour))
	assert.NoError(t, ValidateDuration(time.Hour, 10*time.Second, time.Hour))
	assert.ErrorContains(t, ValidateDuration(time.Second, 10*time.Second, time.Hour), "below minimum")
	assert.ErrorContains(t, ValidateDuration(2*time.Hour, 10*time.Second, time.Hour), "exceeds maximum")
	assert.ErrorContains(t, ValidateDuration(time.Minute, time.Hour, time.Second), "invalid range")
}

func TestValidateIntRange(t *testing.T) {
	assert.NoError(t, ValidateIntRange(1, 1, 10))
	assert.NoError(t, ValidateIntRange(10, 1, 10))
	assert.ErrorContains(t, ValidateIntRange(0, 1, 10), "below minimum")
	assert.ErrorContains(t, ValidateIntRange(11, 1, 10), "exceeds maximum")
	assert.ErrorContains(t, ValidateIntRange(5, 10, 1), "invalid range")
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, ValidatePort(0))
	assert.NoError(t, ValidatePort(9090))
	assert.Error(t, ValidatePort(-1))
	assert.Error(t, ValidatePort(70000))
}

func TestValidateOneOf(t *testing.T) {
	assert.NoError(t, ValidateOneOf("rss", "api", "rss"))
	err := ValidateOneOf("atom", "api", "rss")
	assert.EqualError(t, err, "'atom' must be one of api, rss")
}

func TestValidateHTTPSURL(t *testing.T) {
	discord := []string{"discord.com", "discordapp.com"}

	tests := []struct {
		name    string
		raw     string
		hosts   []string
		wantErr string
	}{
		{"discord webhook", "https://discord.com/api/webhooks/1/abc", discord, ""},
		{"ptb subdomain", "https://ptb.discord.com/api/webhooks/1/abc", discord, ""},
		{"legacy host", "https://discordapp.com/api/webhooks/1/abc", discord, ""},
		{"any host", "https://example.com/hook", nil, ""},
		{"plain http", "http://discord.com/api/webhooks/1/abc", discord, "must use https"},
		{"wrong host", "https://hooks.slack.com/services/T/B/X", discord, "is not one of"},
		{"suffix trick", "https://evildiscord.com/api/webhooks/1/abc", discord, "is not one of"},
		{"no host", "https:///path", nil, "no host"},
		{"garbage", "://nope", nil, "invalid url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHTTPSURL(tt.raw, tt.hosts...)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
