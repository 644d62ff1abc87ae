// Package config provides fail-open loaders, validators, and metrics shared by
// the configuration layers of statuswatch.
//
// Tunables are loaded with a fail-open strategy: an unset variable yields the
// default silently, and a value that does not parse or validate yields the
// default plus a warning. The caller logs the warning and counts the fallback
// in ConfigMetrics, so a typo in an optional setting never stops the relay.
//
// Required settings (account handle, database URL, webhook) are not loaded
// here. They are validated strictly by internal/config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadResult is the outcome of loading one tunable.
type LoadResult[T any] struct {
	// Value is the loaded value, or the default when FallbackApplied is set.
	Value T

	// Warnings holds human-readable reasons for a fallback.
	Warnings []string

	// FallbackApplied is true when the configured value was rejected.
	FallbackApplied bool
}

// LoadEnvString returns the trimmed value of envKey, or defaultValue when unset.
func LoadEnvString(envKey, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(envKey))
	if value == "" {
		return defaultValue
	}
	return value
}

// LoadEnvWithFallback loads a string tunable, validated by validator when non-nil.
//
// Example:
//
//	result := LoadEnvWithFallback("POLL_SCHEDULE", "", ValidateCronSchedule)
//	if result.FallbackApplied {
//	    logger.Warn("Configuration fallback applied", slog.Any("warnings", result.Warnings))
//	}
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) LoadResult[string] {
	return load(envKey, defaultValue, func(s string) (string, error) { return s, nil }, validator)
}

// LoadEnvDuration loads a duration tunable in time.ParseDuration format ("30s", "5m").
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) LoadResult[time.Duration] {
	return load(envKey, defaultValue, time.ParseDuration, validator)
}

// LoadEnvInt loads a base-10 integer tunable.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) LoadResult[int] {
	return load(envKey, defaultValue, strconv.Atoi, validator)
}

// LoadEnvBool loads a boolean tunable. strconv.ParseBool spellings are accepted,
// plus "yes"/"no" and "on"/"off" in any case.
func LoadEnvBool(envKey string, defaultValue bool) LoadResult[bool] {
	return load(envKey, defaultValue, parseBool, nil)
}

func load[T any](envKey string, defaultValue T, parse func(string) (T, error), validator func(T) error) LoadResult[T] {
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" {
		return LoadResult[T]{Value: defaultValue}
	}

	value, err := parse(raw)
	if err == nil && validator != nil {
		err = validator(value)
	}
	if err != nil {
		return LoadResult[T]{
			Value: defaultValue,
			Warnings: []string{fmt.Sprintf(
				"Invalid %s='%s': %v, falling back to default '%v'",
				envKey, raw, err, defaultValue,
			)},
			FallbackApplied: true,
		}
	}

	return LoadResult[T]{Value: value}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}
