package ratelimit

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for rate limiting.
type Metrics struct {
	checksTotal      *prometheus.CounterVec
	degradationTotal prometheus.Counter
	registry         *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gatekeeper"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "checks_total",
			Help:      "Total number of rate limit checks",
		},
		[]string{"tier", "outcome"},
	)

	m.degradationTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "store_degradations_total",
			Help:      "Total number of checks resolved by the fail-open policy",
		},
	)

	m.registry.MustRegister(m.checksTotal, m.degradationTotal)

	return m
}

// RecordCheck records a rate limit check outcome.
func (m *Metrics) RecordCheck(tier, outcome string) {
	m.checksTotal.WithLabelValues(tier, outcome).Inc()
}

// RecordDegradation records a check resolved by the degradation policy.
func (m *Metrics) RecordDegradation() {
	m.degradationTotal.Inc()
}

// Registry returns the metrics registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
