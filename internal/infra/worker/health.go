package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"statuswatch/internal/usecase/relay"
)

// DefaultMaxConsecutiveFailures is the number of failed ticks in a row after
// which the readiness probe reports the relay as unhealthy.
const DefaultMaxConsecutiveFailures = 5

// StatusSource reports the poll loop status. *relay.Service implements it.
type StatusSource interface {
	Status() relay.Status
}

// HealthServer provides HTTP endpoints for health checks:
//   - /health: Liveness probe (always returns 200 OK)
//   - /health/ready: Readiness probe (200 once started and the relay is not
//     failing repeatedly, 503 otherwise)
//
// Example usage:
//
//	healthServer := NewHealthServer(":9091", svc, logger)
//	g.Go(func() error { return healthServer.Start(ctx) })
//	healthServer.SetReady(true)
type HealthServer struct {
	addr        string
	logger      *slog.Logger
	source      StatusSource
	maxFailures int
	isReady     atomic.Bool
}

// healthResponse is the JSON body of both endpoints.
type healthResponse struct {
	Status              string     `json:"status"`
	State               string     `json:"state,omitempty"`
	LastTickAt          *time.Time `json:"last_tick_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures,omitempty"`
}

// NewHealthServer creates a health server for the relay. source may be nil, in
// which case readiness depends only on SetReady.
func NewHealthServer(addr string, source StatusSource, logger *slog.Logger) *HealthServer {
	return &HealthServer{
		addr:        addr,
		logger:      logger,
		source:      source,
		maxFailures: DefaultMaxConsecutiveFailures,
	}
}

// WithMaxConsecutiveFailures overrides DefaultMaxConsecutiveFailures.
func (h *HealthServer) WithMaxConsecutiveFailures(n int) *HealthServer {
	h.maxFailures = n
	return h
}

// Handler returns the probe routes.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleLiveness)
	mux.HandleFunc("GET /health/ready", h.handleReadiness)
	return mux
}

// Start serves the probes until ctx is cancelled, then shuts down gracefully.
// It returns nil after a graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	return serve(ctx, "health", h.addr, h.Handler(), h.logger)
}

// SetReady marks initialization as complete (or the process as draining).
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !h.isReady.Load() {
		h.write(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
		return
	}
	if h.source == nil {
		h.write(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}

	st := h.source.Status()
	resp := healthResponse{
		Status:              "ok",
		State:               st.State.String(),
		LastTickAt:          timePtr(st.LastTickAt),
		LastSuccessAt:       timePtr(st.LastSuccessAt),
		ConsecutiveFailures: st.ConsecutiveFailures,
	}
	code := http.StatusOK
	if h.maxFailures > 0 && st.ConsecutiveFailures >= h.maxFailures {
		resp.Status = "failing"
		code = http.StatusServiceUnavailable
	}
	h.write(w, code, resp)
}

func (h *HealthServer) write(w http.ResponseWriter, code int, body healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
