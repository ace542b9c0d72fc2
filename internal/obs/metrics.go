package obs

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	lookups       *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	coalesced     prometheus.Counter
	mutations     *prometheus.CounterVec
	invalidations prometheus.Counter
	subscribers   prometheus.Gauge
}

var (
	defaultMetricsMu sync.RWMutex
	defaultMetrics   *Metrics
)

func SetDefaultMetrics(metrics *Metrics) {
	defaultMetricsMu.Lock()
	defaultMetrics = metrics
	defaultMetricsMu.Unlock()
}

func DefaultMetrics() *Metrics {
	defaultMetricsMu.RLock()
	defer defaultMetricsMu.RUnlock()
	return defaultMetrics
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "querycache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "querycache_fetches_total",
		Help: "Remote fetches by outcome",
	}, []string{"outcome"})

	coalesced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "querycache_coalesced_waits_total",
		Help: "Callers attached to an already in-flight fetch",
	})

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "querycache_mutations_total",
		Help: "Mutations by outcome",
	}, []string{"outcome"})

	invalidations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "querycache_invalidations_total",
		Help: "Entries marked stale by invalidation cascades",
	})

	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "querycache_subscribers",
		Help: "Currently registered subscribers",
	})

	registry.MustRegister(lookups, fetches, coalesced, mutations, invalidations, subscribers)

	return &Metrics{
		registry:      registry,
		lookups:       lookups,
		fetches:       fetches,
		coalesced:     coalesced,
		mutations:     mutations,
		invalidations: invalidations,
		subscribers:   subscribers,
	}
}

const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupStale = "stale"

	FetchSuccess    = "success"
	FetchError      = "error"
	FetchSuperseded = "superseded"

	MutationSuccess  = "success"
	MutationRollback = "rollback"
)

func (m *Metrics) RecordLookup(result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordFetch(outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCoalescedWait() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

func (m *Metrics) RecordMutation(outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordInvalidations(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invalidations.Add(float64(count))
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
