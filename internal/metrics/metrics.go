// Package metrics holds the Prometheus instruments exported by the proxy.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics in tests or when metrics.enabled is false.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "secretproxy"

// Cache lookup results.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"
)

// Population outcomes.
const (
	PopulationStored    = "stored"
	PopulationDiscarded = "discarded"
	PopulationAbsent    = "absent"
	PopulationFailed    = "failed"
)

// Backend call outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics groups every instrument.
type Metrics struct {
	cacheLookups       *prometheus.CounterVec
	cachePopulations   *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	cacheEntries       prometheus.Gauge

	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec

	workersInUse prometheus.Gauge
	workersSize  prometheus.Gauge

	httpRequests *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns metrics registered with the global Prometheus registry.
// Registration happens once per process.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates metrics registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Entry cache lookups by result",
			},
			[]string{"result"},
		),
		cachePopulations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_populations_total",
				Help:      "Completed cache populations by outcome",
			},
			[]string{"outcome"},
		),
		cacheInvalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Cache invalidations by scope (key or all)",
			},
			[]string{"scope"},
		),
		cacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Number of entries currently cached",
			},
		),
		backendRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Secret backend calls by operation and outcome",
			},
			[]string{"backend", "operation", "outcome"},
		),
		backendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Latency of secret backend calls",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"backend", "operation"},
		),
		workersInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_in_use",
				Help:      "Backend worker pool slots currently held",
			},
		),
		workersSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_size",
				Help:      "Configured backend worker pool size",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
	}
}

// CacheLookup records a hit or a miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues(ResultHit).Inc()
		return
	}
	m.cacheLookups.WithLabelValues(ResultMiss).Inc()
}

// CachePopulation records how a population finished.
func (m *Metrics) CachePopulation(outcome string) {
	if m == nil {
		return
	}
	m.cachePopulations.WithLabelValues(outcome).Inc()
}

// CacheInvalidation records an explicit invalidation.
func (m *Metrics) CacheInvalidation(all bool) {
	if m == nil {
		return
	}
	scope := "key"
	if all {
		scope = "all"
	}
	m.cacheInvalidations.WithLabelValues(scope).Inc()
}

// CacheEntries sets the cached entry count.
func (m *Metrics) CacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

// BackendCall records one backend call.
func (m *Metrics) BackendCall(backendName, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(backendName, operation, outcome).Inc()
	m.backendDuration.WithLabelValues(backendName, operation).Observe(elapsed.Seconds())
}

// WorkersSize records the configured pool size.
func (m *Metrics) WorkersSize(n int) {
	if m == nil {
		return
	}
	m.workersSize.Set(float64(n))
}

// WorkerAcquired increments the in-use gauge.
func (m *Metrics) WorkerAcquired() {
	if m == nil {
		return
	}
	m.workersInUse.Inc()
}

// WorkerReleased decrements the in-use gauge.
func (m *Metrics) WorkerReleased() {
	if m == nil {
		return
	}
	m.workersInUse.Dec()
}

// HTTPRequest records a served request.
func (m *Metrics) HTTPRequest(route, method, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, code).Inc()
}
