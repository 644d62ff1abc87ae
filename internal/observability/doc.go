// Package observability groups the logging, metrics and tracing helpers used by
// the relay.
//
// Subpackages:
//   - logging: slog construction and context propagation
//   - metrics: Prometheus collectors for ticks, fetches, sends and store operations
//   - tracing: OpenTelemetry spans around each tick
//
// Example usage:
//
//	import (
//	    "statuswatch/internal/observability/logging"
//	    "statuswatch/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.New(logging.Options{Format: "json"})
//	    logger.Info("relay started")
//
//	    metrics.RecordTick(metrics.ResultSuccess, time.Second, time.Now())
//	}
package observability
