package worker

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerMetrics_RecordStart(t *testing.T) {
	m := NewWorkerMetricsWith(prometheus.NewRegistry())

	m.RecordStart("v1.2.3")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildInfo.WithLabelValues("v1.2.3", runtime.Version())))
	assert.Greater(t, testutil.ToFloat64(m.StartTimestamp), 0.0)
}

func TestWorkerMetrics_Ready(t *testing.T) {
	m := NewWorkerMetricsWith(prometheus.NewRegistry())

	m.SetReady(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ready))

	m.SetReady(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Ready))
}

func TestWorkerMetrics_EmbedsConfigMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWorkerMetricsWith(reg)

	m.RecordFallback("poll_interval")

	count, err := testutil.GatherAndCount(reg, "statuswatch_config_fallbacks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsServer_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWorkerMetricsWith(reg)
	m.SetReady(true)

	server := &MetricsServer{addr: ":0", logger: discardLogger(), gatherer: reg}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "statuswatch_worker_ready 1")
}

func TestAddr(t *testing.T) {
	assert.Equal(t, "", Addr(0))
	assert.Equal(t, ":9090", Addr(9090))
}

func TestServe_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	err = NewMetricsServer(ln.Addr().String(), discardLogger()).Start(context.Background())

	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "metrics server listen"))
}
