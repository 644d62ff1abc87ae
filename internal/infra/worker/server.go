// Package worker hosts the health and metrics HTTP servers of the relay process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Addr returns the listen address for port, or "" when port is 0 (disabled).
func Addr(port int) string {
	if port == 0 {
		return ""
	}
	return fmt.Sprintf(":%d", port)
}

// MetricsServer exposes the Prometheus registry on /metrics.
type MetricsServer struct {
	addr     string
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// NewMetricsServer creates a metrics server for the default Prometheus registry.
func NewMetricsServer(addr string, logger *slog.Logger) *MetricsServer {
	return &MetricsServer{addr: addr, logger: logger, gatherer: prometheus.DefaultGatherer}
}

// Handler returns the /metrics route.
func (m *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start serves /metrics until ctx is cancelled. It returns nil after a graceful shutdown.
func (m *MetricsServer) Start(ctx context.Context) error {
	return serve(ctx, "metrics", m.addr, m.Handler(), m.logger)
}

// serve runs an HTTP server on addr until ctx is done. A listen failure is
// returned immediately so the caller's errgroup can stop the process.
func serve(ctx context.Context, name, addr string, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s server listen %s: %w", name, addr, err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info(name+" server starting", slog.String("addr", ln.Addr().String()))
		errChan <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.Info(name + " server shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(name+" server shutdown failed", slog.Any("error", err))
			return err
		}
		logger.Info(name + " server stopped")
		return nil

	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error(name+" server failed", slog.Any("error", err))
		return err
	}
}
