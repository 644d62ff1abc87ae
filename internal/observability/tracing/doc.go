// Package tracing provides OpenTelemetry tracing integration.
//
// Each poll tick is a span with one child span per phase (fetch, reconcile,
// deliver) carrying the tick id and counts as attributes.
//
// Example usage:
//
//	import "statuswatch/internal/observability/tracing"
//
//	func main() {
//	    shutdown := tracing.Init()
//	    defer func() { _ = shutdown(context.Background()) }()
//	}
//
//	func fetch(ctx context.Context) (err error) {
//	    ctx, span := tracing.StartSpan(ctx, "relay.fetch")
//	    defer func() { tracing.EndSpan(span, err) }()
//	    // ...
//	}
package tracing
