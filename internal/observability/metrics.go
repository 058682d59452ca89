// Package observability exposes Prometheus metrics for the engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics on a custom registry — no global
// state. A nil *Metrics is valid and records nothing, so metrics stay
// optional in tests.
type Metrics struct {
	Registry *prometheus.Registry

	ActiveSessions prometheus.Gauge
	WSConnections  prometheus.Gauge

	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	OutputFramesTotal prometheus.Counter
	OutputBytesTotal  prometheus.Counter
	StdinBytesTotal   prometheus.Counter
}

// New creates a Metrics with everything registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "palrun",
			Subsystem: "engine",
			Name:      "active_sessions",
			Help:      "Currently running execution sessions.",
		}),

		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "palrun",
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "palrun",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total execution sessions by language and outcome.",
		}, []string{"language", "outcome"}),

		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "palrun",
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Session wall-clock duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"language"}),

		OutputFramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "palrun",
			Subsystem: "engine",
			Name:      "output_frames_total",
			Help:      "Output frames produced across all sessions.",
		}),

		OutputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "palrun",
			Subsystem: "engine",
			Name:      "output_bytes_total",
			Help:      "Output bytes produced across all sessions.",
		}),

		StdinBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "palrun",
			Subsystem: "gateway",
			Name:      "stdin_bytes_total",
			Help:      "Stdin bytes forwarded to sessions.",
		}),
	}

	reg.MustRegister(
		m.ActiveSessions,
		m.WSConnections,
		m.RunsTotal,
		m.RunDuration,
		m.OutputFramesTotal,
		m.OutputBytesTotal,
		m.StdinBytesTotal,
	)

	return m
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionEnded(language, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.RunsTotal.WithLabelValues(language, outcome).Inc()
	m.RunDuration.WithLabelValues(language).Observe(d.Seconds())
}

func (m *Metrics) RunRejected(language, reason string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(language, reason).Inc()
}

func (m *Metrics) OutputFrame(bytes int) {
	if m == nil {
		return
	}
	m.OutputFramesTotal.Inc()
	m.OutputBytesTotal.Add(float64(bytes))
}

func (m *Metrics) StdinBytes(n int) {
	if m == nil {
		return
	}
	m.StdinBytesTotal.Add(float64(n))
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
