// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the application.
//
// Key features:
//   - JSON and text output formats (LOG_FORMAT)
//   - Configurable log levels (LOG_LEVEL)
//   - Tick-scoped loggers carrying tick_id
//   - Context-aware logging
//
// Example usage:
//
//	import "statuswatch/internal/observability/logging"
//
//	func main() {
//	    logger := logging.New(logging.Options{Level: "debug", Format: "text"})
//	    slog.SetDefault(logger)
//	}
//
//	func tick(ctx context.Context, tickID string) {
//	    logger := logging.WithTick(logging.FromContext(ctx), tickID, "alice")
//	    logger.Info("tick started")
//	}
package logging
