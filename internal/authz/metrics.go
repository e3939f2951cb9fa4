package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for authorization.
type Metrics struct {
	matchTotal    *prometheus.CounterVec
	matchDuration prometheus.Histogram
	decisionTotal *prometheus.CounterVec
	registry      *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gatekeeper"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.matchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "rule_match_total",
			Help:      "Total number of rule table evaluations",
		},
		[]string{"status"},
	)

	m.matchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "rule_match_duration_seconds",
			Help:      "Duration of rule table evaluations in seconds",
			Buckets:   []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01},
		},
	)

	m.decisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Total number of emitted decisions",
		},
		[]string{"effect", "reason"},
	)

	m.registry.MustRegister(m.matchTotal, m.matchDuration, m.decisionTotal)

	return m
}

// RecordMatch records a rule table evaluation.
func (m *Metrics) RecordMatch(status string, duration time.Duration) {
	m.matchTotal.WithLabelValues(status).Inc()
	m.matchDuration.Observe(duration.Seconds())
}

// RecordDecision records an emitted decision.
func (m *Metrics) RecordDecision(effect, reason string) {
	m.decisionTotal.WithLabelValues(effect, reason).Inc()
}

// Registry returns the metrics registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
