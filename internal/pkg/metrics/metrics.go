// Package metrics exposes browse gateway counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wanderhost/browse-api/internal/collection"
)

const namespace = "browse"

// Metrics holds every collector the gateway reports. It satisfies
// collection.Observer and pagecache.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	fetchesStarted   prometheus.Counter
	fetchesCommitted *prometheus.CounterVec
	fetchesDiscarded prometheus.Counter
	fetchDuration    *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	sessionsEvicted  prometheus.Counter
}

// New registers the gateway collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		fetchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_started_total",
			Help:      "Collection fetches issued.",
		}),
		fetchesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_committed_total",
			Help:      "Collection fetches whose result was committed, by outcome state.",
		}, []string{"state"}),
		fetchesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_discarded_total",
			Help:      "Collection fetches superseded by a newer request.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time from issuing a fetch to its commit or discard.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_cache_lookups_total",
			Help:      "Page cache lookups, by result.",
		}, []string{"result"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Browse sessions currently held in memory.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Browse sessions closed by the idle janitor.",
		}),
	}

	reg.MustRegister(
		m.fetchesStarted,
		m.fetchesCommitted,
		m.fetchesDiscarded,
		m.fetchDuration,
		m.cacheLookups,
		m.sessionsActive,
		m.sessionsEvicted,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) FetchStarted() {
	m.fetchesStarted.Inc()
}

func (m *Metrics) FetchCommitted(state collection.State, elapsed time.Duration) {
	m.fetchesCommitted.WithLabelValues(state.String()).Inc()
	m.fetchDuration.WithLabelValues(state.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) FetchDiscarded(elapsed time.Duration) {
	m.fetchesDiscarded.Inc()
	m.fetchDuration.WithLabelValues("discarded").Observe(elapsed.Seconds())
}

func (m *Metrics) CacheHit() {
	m.cacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// SessionOpened and SessionClosed track the active session gauge.
func (m *Metrics) SessionOpened() {
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed(evicted bool) {
	m.sessionsActive.Dec()
	if evicted {
		m.sessionsEvicted.Inc()
	}
}
