package worker

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"statuswatch/internal/pkg/config"
)

// WorkerMetrics groups the process-level metrics of the relay worker.
//
// Embedded metrics (from ConfigMetrics):
//   - statuswatch_config_load_timestamp
//   - statuswatch_config_validation_errors_total{field}
//   - statuswatch_config_fallbacks_total{field}
//   - statuswatch_config_fallback_active
//
// Worker metrics:
//   - statuswatch_build_info{version,go_version}: always 1
//   - statuswatch_worker_ready: 1 while the poll loop is running
//   - statuswatch_worker_start_timestamp: Unix timestamp of process start
type WorkerMetrics struct {
	*config.ConfigMetrics

	BuildInfo      *prometheus.GaugeVec
	Ready          prometheus.Gauge
	StartTimestamp prometheus.Gauge
}

// NewWorkerMetrics registers the worker metrics with the default registry.
// Call it once per process.
func NewWorkerMetrics() *WorkerMetrics {
	return NewWorkerMetricsWith(prometheus.DefaultRegisterer)
}

// NewWorkerMetricsWith registers the worker metrics with reg.
func NewWorkerMetricsWith(reg prometheus.Registerer) *WorkerMetrics {
	factory := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetricsWith(reg, "statuswatch"),

		BuildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "statuswatch_build_info",
			Help: "Build information of the running relay",
		}, []string{"version", "go_version"}),

		Ready: factory.NewGauge(prometheus.GaugeOpts{
			Name: "statuswatch_worker_ready",
			Help: "1 while the poll loop is running, 0 otherwise",
		}),

		StartTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "statuswatch_worker_start_timestamp",
			Help: "Unix timestamp of the worker process start",
		}),
	}
}

// RecordStart publishes the build info and start timestamp.
func (m *WorkerMetrics) RecordStart(version string) {
	m.BuildInfo.WithLabelValues(version, runtime.Version()).Set(1)
	m.StartTimestamp.SetToCurrentTime()
}

// SetReady mirrors the readiness flag of the health server.
func (m *WorkerMetrics) SetReady(ready bool) {
	if ready {
		m.Ready.Set(1)
		return
	}
	m.Ready.Set(0)
}
