package metrics

import (
	"time"
)

// Tick results.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultCanceled = "canceled"
)

// Skip reasons.
const (
	SkipSeen      = "seen"
	SkipDuplicate = "duplicate"
	SkipFiltered  = "filtered"
)

// RecordTick records the outcome and duration of a poll tick.
// A successful tick also moves the last-success timestamp forward.
func RecordTick(result string, duration time.Duration, finishedAt time.Time) {
	TicksTotal.WithLabelValues(result).Inc()
	TickDuration.Observe(duration.Seconds())
	if result == ResultSuccess {
		LastSuccessTimestamp.Set(float64(finishedAt.Unix()))
	}
}

// RecordTransition records a state machine transition.
func RecordTransition(from, to string) {
	StateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordFetch records a fetch. kind is empty on success.
func RecordFetch(posts int, kind string, duration time.Duration) {
	FetchDuration.Observe(duration.Seconds())
	if kind != "" {
		FetchErrorsTotal.WithLabelValues(kind).Inc()
		return
	}
	PostsFetchedTotal.Add(float64(posts))
}

// RecordSkipped records n posts dropped for reason.
func RecordSkipped(reason string, n int) {
	if n > 0 {
		PostsSkippedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordNotify records a send to channel. kind is empty on success.
func RecordNotify(channel, kind string, duration time.Duration) {
	NotifyDuration.WithLabelValues(channel).Observe(duration.Seconds())
	if kind != "" {
		NotifyErrorsTotal.WithLabelValues(channel, kind).Inc()
		return
	}
	PostsDeliveredTotal.WithLabelValues(channel).Inc()
}

// RecordStoreOp records a seen store operation. kind is empty on success.
// Operation should be "has_seen" or "mark_seen".
func RecordStoreOp(operation, kind string, duration time.Duration) {
	StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if kind != "" {
		StoreErrorsTotal.WithLabelValues(operation, kind).Inc()
	}
}
