// Package metrics exposes pipeline metrics in Prometheus format
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the voice pipeline. It
// implements usecase.MetricsRecorder.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal              *prometheus.CounterVec
	StageDuration           *prometheus.HistogramVec
	GenerationRetriesTotal  prometheus.Counter
	SynthesisFailuresTotal  prometheus.Counter
	StreamingSessionsActive prometheus.Gauge
}

// New creates a Metrics instance with its own registry
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "lexvoice"
	}

	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of voice turns by transport and outcome",
		},
		[]string{"transport", "outcome"},
	)

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	generationRetries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_retries_total",
			Help:      "Total number of retried generation attempts",
		},
	)

	synthesisFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_failures_total",
			Help:      "Total number of turns delivered without audio",
		},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streaming_sessions_active",
			Help:      "Number of open streaming sessions",
		},
	)

	registry.MustRegister(
		turnsTotal,
		stageDuration,
		generationRetries,
		synthesisFailures,
		sessionsActive,
	)

	return &Metrics{
		registry:                registry,
		TurnsTotal:              turnsTotal,
		StageDuration:           stageDuration,
		GenerationRetriesTotal:  generationRetries,
		SynthesisFailuresTotal:  synthesisFailures,
		StreamingSessionsActive: sessionsActive,
	}
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) GenerationRetry() {
	m.GenerationRetriesTotal.Inc()
}

func (m *Metrics) SynthesisFailure() {
	m.SynthesisFailuresTotal.Inc()
}

func (m *Metrics) Turn(transport, outcome string) {
	m.TurnsTotal.WithLabelValues(transport, outcome).Inc()
}

// SessionOpened records a streaming session starting
func (m *Metrics) SessionOpened() {
	m.StreamingSessionsActive.Inc()
}

// SessionClosed records a streaming session ending
func (m *Metrics) SessionClosed() {
	m.StreamingSessionsActive.Dec()
}
