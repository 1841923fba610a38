// Package metrics exports pipeline metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for the memory pipelines. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	callLatency *prometheus.HistogramVec
	memories    prometheus.Gauge
	removed     *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome",
		},
		[]string{"pipeline", "outcome"},
	)

	m.callLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "engram",
			Name:      "service_call_seconds",
			Help:      "Language model call latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"pipeline", "status"},
	)

	m.memories = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "engram",
			Name:      "memories",
			Help:      "Number of stored memories",
		},
	)

	m.removed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "memories_removed_total",
			Help:      "Memories removed by consolidation, by reason",
		},
		[]string{"reason"},
	)

	m.registry.MustRegister(m.runs, m.callLatency, m.memories, m.removed)
	return m
}

// RecordRun counts one pipeline run.
func (m *Metrics) RecordRun(pipeline, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(pipeline, outcome).Inc()
}

// RecordCall records the latency of one service call.
func (m *Metrics) RecordCall(pipeline string, latency time.Duration, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	m.callLatency.WithLabelValues(pipeline, status).Observe(latency.Seconds())
}

// SetMemories sets the stored memory count.
func (m *Metrics) SetMemories(n int) {
	if m == nil {
		return
	}
	m.memories.Set(float64(n))
}

// RecordRemoved counts memories removed for reason.
func (m *Metrics) RecordRemoved(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.removed.WithLabelValues(reason).Add(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
