package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcome labels.
const (
	TurnOK       = "ok"
	TurnError    = "error"
	TurnCanceled = "canceled"
	TurnInvalid  = "invalid"
	TurnTimeout  = "timeout"
)

// Metrics holds all Prometheus metrics for the relay. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Live session metrics
	LiveSessionsActive  prometheus.Gauge
	LiveSessionsTotal   *prometheus.CounterVec
	LiveSessionDuration prometheus.Histogram

	// Turn metrics
	TurnsTotal       *prometheus.CounterVec
	GenerateDuration *prometheus.HistogramVec
}

// New creates a Metrics instance on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "revlive"
	}

	registry := prometheus.NewRegistry()

	liveSessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of open live sessions",
		},
	)

	liveSessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Total number of live sessions by close reason",
		},
		[]string{"reason"},
	)

	liveSessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of inbound turns by outcome",
		},
		[]string{"status"},
	)

	generateDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generate_duration_seconds",
			Help:      "Generation call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"model", "status"},
	)

	registry.MustRegister(
		liveSessionsActive,
		liveSessionsTotal,
		liveSessionDuration,
		turnsTotal,
		generateDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:            registry,
		LiveSessionsActive:  liveSessionsActive,
		LiveSessionsTotal:   liveSessionsTotal,
		LiveSessionDuration: liveSessionDuration,
		TurnsTotal:          turnsTotal,
		GenerateDuration:    generateDuration,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLiveSessionStart records a live session opening.
func (m *Metrics) RecordLiveSessionStart() {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Inc()
}

// RecordLiveSessionEnd records a live session closing.
func (m *Metrics) RecordLiveSessionEnd(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Dec()
	m.LiveSessionsTotal.WithLabelValues(reason).Inc()
	m.LiveSessionDuration.Observe(duration.Seconds())
}

// RecordTurn records the outcome of one inbound turn.
func (m *Metrics) RecordTurn(status string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(status).Inc()
}

// RecordGenerate records one generation call.
func (m *Metrics) RecordGenerate(model, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GenerateDuration.WithLabelValues(model, status).Observe(duration.Seconds())
}
