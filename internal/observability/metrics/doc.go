// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes the relay metrics:
//   - Poll tick outcomes, durations and state transitions
//   - Posts fetched, skipped and delivered
//   - Fetch, notify and seen store errors and latencies
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "statuswatch/internal/observability/metrics"
//
//	func tick() {
//	    start := time.Now()
//	    // ... fetch, reconcile, deliver ...
//	    metrics.RecordTick(metrics.ResultSuccess, time.Since(start), time.Now())
//	}
package metrics
