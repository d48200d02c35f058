// Package metrics exposes Prometheus metrics for the studio engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	generationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamesmith_generation_requests_total",
			Help: "Total generation turns by outcome",
		},
		[]string{"outcome"},
	)

	generationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gamesmith_generation_duration_seconds",
			Help:    "Wall time of one generation turn",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 120},
		},
	)

	previewBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamesmith_preview_builds_total",
			Help: "Total preview bundling passes by strategy",
		},
		[]string{"strategy"},
	)

	previewAssetsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamesmith_preview_assets_active",
			Help: "Files served by the current preview pass",
		},
	)

	previewWarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamesmith_preview_warnings_total",
			Help: "Unresolvable references found while bundling",
		},
	)

	consoleEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamesmith_console_events_total",
			Help: "Console events relayed from preview runs",
		},
		[]string{"level"},
	)

	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamesmith_sse_connections_active",
			Help: "Active event stream subscribers",
		},
	)

	workspacesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamesmith_workspaces",
			Help: "Workspaces currently in the studio state",
		},
	)

	rpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamesmith_rpc_requests_total",
			Help: "Total RPC requests by method and result",
		},
		[]string{"method", "result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordGeneration(outcome string, duration time.Duration) {
	generationRequestsTotal.WithLabelValues(outcome).Inc()
	generationDuration.Observe(duration.Seconds())
}

func RecordPreviewBuild(strategy string) {
	previewBuildsTotal.WithLabelValues(strategy).Inc()
}

func SetPreviewAssetsActive(n int) {
	previewAssetsActive.Set(float64(n))
}

func RecordPreviewWarnings(n int) {
	previewWarningsTotal.Add(float64(n))
}

func RecordConsoleEvent(level string) {
	consoleEventsTotal.WithLabelValues(level).Inc()
}

func SetSSEConnectionsActive(n int) {
	sseConnectionsActive.Set(float64(n))
}

func SetWorkspaceCount(n int) {
	workspacesActive.Set(float64(n))
}

func RecordRPCRequest(method, result string) {
	rpcRequestsTotal.WithLabelValues(method, result).Inc()
}
