// Package monitoring exposes the scanner's Observable metrics over
// Prometheus and a process health/readiness snapshot over plain HTTP.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	wsReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanner_ws_reconnects_total",
			Help: "Total number of websocket reconnects across all connections",
		},
	)

	signalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanner_signals_total",
			Help: "Total number of signals emitted",
		},
	)

	activeStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanner_active_streams",
			Help: "Current number of active kline+depth streams (2 per subscribed symbol)",
		},
	)

	pipelineLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scanner_pipeline_latency_milliseconds",
			Help:    "Latency from tick fusion timestamp to signal emission, in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	memoryUsageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanner_memory_usage_bytes",
			Help: "Current memory usage in bytes",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanner_goroutines_count",
			Help: "Current number of goroutines",
		},
	)
)

// RecordReconnect increments the websocket reconnect counter.
func RecordReconnect() { wsReconnects.Inc() }

// RecordSignal increments the signals-emitted counter.
func RecordSignal() { signalsTotal.Inc() }

// SetActiveStreams sets the active-streams gauge.
func SetActiveStreams(n int) { activeStreams.Set(float64(n)) }

// ObservePipelineLatency records one pipeline-latency sample in milliseconds.
func ObservePipelineLatency(ms float64) { pipelineLatency.Observe(ms) }

// SetMemoryUsage sets the memory-usage gauge.
func SetMemoryUsage(bytes uint64) { memoryUsageBytes.Set(float64(bytes)) }

// SetGoroutineCount sets the goroutine-count gauge.
func SetGoroutineCount(count int) { goroutineCount.Set(float64(count)) }

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
