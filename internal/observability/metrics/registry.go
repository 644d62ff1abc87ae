// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll loop metrics track tick outcomes and the relay state machine
var (
	// TicksTotal counts completed poll ticks by result
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_ticks_total",
			Help: "Total number of poll ticks",
		},
		[]string{"result"}, // result: success|error|canceled
	)

	// TickDuration measures one poll tick from fetch to last delivery
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_tick_duration_seconds",
			Help:    "Poll tick duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// LastSuccessTimestamp is the unix time of the last tick that ended without error
	LastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_last_success_timestamp_seconds",
			Help: "Unix time of the last successful poll tick",
		},
	)

	// StateTransitionsTotal counts state machine transitions
	StateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_state_transitions_total",
			Help: "Total number of relay state transitions",
		},
		[]string{"from", "to"},
	)
)

// Post metrics track what happens to upstream posts
var (
	// PostsFetchedTotal counts posts returned by the upstream
	PostsFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_posts_fetched_total",
			Help: "Total number of posts fetched from the upstream",
		},
	)

	// PostsSkippedTotal counts posts not delivered, by reason
	PostsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_posts_skipped_total",
			Help: "Total number of fetched posts that were not delivered",
		},
		[]string{"reason"}, // reason: seen|duplicate|filtered
	)

	// PostsDeliveredTotal counts posts sent and marked seen
	PostsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_posts_delivered_total",
			Help: "Total number of posts delivered downstream",
		},
		[]string{"channel"},
	)
)

// Collaborator metrics track the fetcher, notifier and seen store
var (
	// FetchErrorsTotal counts failed fetches by error kind
	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fetch_errors_total",
			Help: "Total number of failed upstream fetches",
		},
		[]string{"kind"},
	)

	// FetchDuration measures a fetch including retries
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_fetch_duration_seconds",
			Help:    "Upstream fetch duration in seconds, including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// NotifyErrorsTotal counts failed sends by channel and error kind
	NotifyErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_notify_errors_total",
			Help: "Total number of failed notifications",
		},
		[]string{"channel", "kind"},
	)

	// NotifyDuration measures a send including rate limiting and retries
	NotifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_notify_duration_seconds",
			Help:    "Notification send duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"channel"},
	)

	// StoreErrorsTotal counts seen-store failures by operation and kind
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_store_errors_total",
			Help: "Total number of seen store errors",
		},
		[]string{"operation", "kind"},
	)

	// StoreQueryDuration measures seen store operations
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_store_query_duration_seconds",
			Help:    "Seen store operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// CircuitBreakerState is the gobreaker state per breaker (0 closed, 1 half-open, 2 open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
