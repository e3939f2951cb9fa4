package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the cache and the coordinator.
type Metrics struct {
	hitsTotal          *prometheus.CounterVec
	missesTotal        *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	invalidationsTotal *prometheus.CounterVec
	registry           *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gatekeeper"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.hitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"backend"},
	)

	m.missesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"backend"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Total number of cache backend errors",
		},
		[]string{"backend", "operation"},
	)

	m.invalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of post-write invalidation deletes",
		},
		[]string{"status"},
	)

	m.registry.MustRegister(m.hitsTotal, m.missesTotal, m.errorsTotal, m.invalidationsTotal)

	return m
}

// RecordHit records a cache hit.
func (m *Metrics) RecordHit(backend string) {
	m.hitsTotal.WithLabelValues(backend).Inc()
}

// RecordMiss records a cache miss.
func (m *Metrics) RecordMiss(backend string) {
	m.missesTotal.WithLabelValues(backend).Inc()
}

// RecordError records a cache backend error.
func (m *Metrics) RecordError(backend, operation string) {
	m.errorsTotal.WithLabelValues(backend, operation).Inc()
}

// RecordInvalidation records one invalidation delete outcome.
func (m *Metrics) RecordInvalidation(status string) {
	m.invalidationsTotal.WithLabelValues(status).Inc()
}

// Registry returns the metrics registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
