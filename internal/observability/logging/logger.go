// Package logging provides structured logging utilities using the standard library's log/slog package.
// It offers helper functions for creating loggers with consistent configuration and context propagation.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Output formats accepted by LOG_FORMAT.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options configures a logger.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string

	// Format is json (default) or text.
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// New creates a structured logger from opts.
// Source locations are added when the level is warn or lower, as they are
// mostly useful while debugging.
func New(opts Options) *slog.Logger {
	level, _ := ParseLevel(opts.Level)
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, FormatText) {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}
	return slog.New(handler)
}

// NewLogger creates a logger configured from LOG_LEVEL and LOG_FORMAT.
// It is used before the full configuration is loaded.
func NewLogger() *slog.Logger {
	return New(Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})
}

// ParseLevel maps a level name to a slog.Level.
// It returns false and slog.LevelInfo for unknown names.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ValidFormat reports whether s names a supported output format.
func ValidFormat(s string) bool {
	switch strings.ToLower(s) {
	case "", FormatJSON, FormatText:
		return true
	}
	return false
}

// WithTick returns a logger tagged with the poll tick id and account.
// Every entry written during one poll cycle can be correlated by tick_id.
func WithTick(logger *slog.Logger, tickID, account string) *slog.Logger {
	return logger.With(
		slog.String("tick_id", tickID),
		slog.String("account", account),
	)
}

// FromContext retrieves the logger from the context, or returns the default logger if not found.
// This enables passing loggers through the application via context.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

type contextKey string

const loggerContextKey contextKey = "logger"
