// Package metrics exposes scoring and cache counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kubeguard"

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	cacheEvents  *prometheus.CounterVec
	cacheEntries prometheus.Gauge
	requests     *prometheus.CounterVec
	lines        *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache lookups and removals by event (hit, miss, evict, expire).",
		}, []string{"event"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries currently held by the score cache.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_requests_total",
			Help:      "Scoring batches by result source.",
		}, []string{"source"}),
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scored_lines_total",
			Help:      "Command lines scored, by the scorer that produced them.",
		}, []string{"source"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "External provider failures that degraded to heuristic scoring, by error kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.cacheEvents,
		m.cacheEntries,
		m.requests,
		m.lines,
		m.fallbacks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Request records one scoring batch answered from source, with n of its
// lines freshly scored by that source.
func (m *Metrics) Request(source string, n int) {
	m.requests.WithLabelValues(source).Inc()
	if n > 0 {
		m.lines.WithLabelValues(source).Add(float64(n))
	}
}

// Fallback records an external provider failure of the given kind.
func (m *Metrics) Fallback(kind string) {
	m.fallbacks.WithLabelValues(kind).Inc()
}

// Cache returns a sink for cache.Store events.
func (m *Metrics) Cache() *CacheMetrics {
	return &CacheMetrics{m: m}
}

// CacheMetrics implements cache.Metrics.
type CacheMetrics struct {
	m *Metrics
}

func (c *CacheMetrics) Hit()       { c.m.cacheEvents.WithLabelValues("hit").Inc() }
func (c *CacheMetrics) Miss()      { c.m.cacheEvents.WithLabelValues("miss").Inc() }
func (c *CacheMetrics) Evict()     { c.m.cacheEvents.WithLabelValues("evict").Inc() }
func (c *CacheMetrics) Expire()    { c.m.cacheEvents.WithLabelValues("expire").Inc() }
func (c *CacheMetrics) Size(n int) { c.m.cacheEntries.Set(float64(n)) }
