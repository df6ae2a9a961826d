package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/studio-scheduler/internal/models"
)

const metricsNamespace = "studio"

// Allocation outcome labels.
const (
	allocationGranted   = "granted"
	allocationExhausted = "exhausted"
)

// runningMean accumulates a count and a total duration for mean reporting.
type runningMean struct {
	count atomic.Uint64
	nanos atomic.Uint64
}

func (r *runningMean) add(d time.Duration) {
	r.count.Add(1)
	r.nanos.Add(uint64(d.Nanoseconds()))
}

func (r *runningMean) meanMillis() (uint64, float64) {
	n := r.count.Load()
	if n == 0 {
		return 0, 0
	}
	return n, float64(r.nanos.Load()) / float64(n) / float64(time.Millisecond)
}

// MetricsService owns a private Prometheus registry for the scheduler and
// keeps in-process totals for the JSON summary. Every method is safe on a nil receiver.
type MetricsService struct {
	handler http.Handler

	httpDuration *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	cacheLatency *prometheus.HistogramVec
	dbDuration   *prometheus.HistogramVec
	allocations  *prometheus.CounterVec
	materialized prometheus.Counter
	promotions   *prometheus.CounterVec
	releases     *prometheus.CounterVec

	requests    runningMean
	queries     runningMean
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
	granted     atomic.Uint64
	exhausted   atomic.Uint64
	sessions    atomic.Uint64
	promoted    atomic.Uint64
}

// NewMetricsService registers the scheduler collectors alongside the Go runtime and process collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	m := &MetricsService{
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route template and status.",
		}, []string{"method", "route", "status"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_lookups_total",
			Help:      "Availability cache lookups by result.",
		}, []string{"result"}),
		cacheLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cache_operation_seconds",
			Help:      "Availability cache latency by operation.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"op"}),
		dbDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "db_query_duration_seconds",
			Help:      "Latency of instrumented database work.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		allocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "allocations_total",
			Help:      "Resource allocation attempts by outcome.",
		}, []string{"result"}),
		materialized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_materialized_total",
			Help:      "Class sessions created from schedule patterns.",
		}),
		promotions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "waitlist_promotions_total",
			Help:      "Waitlist promotion attempts by outcome.",
		}, []string{"result"}),
		releases: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "resource_releases_total",
			Help:      "Class session holds released by trigger.",
		}, []string{"trigger"}),
	}
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "cache_hit_ratio",
		Help:      "Share of availability cache lookups served from cache.",
	}, m.hitRatio)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.requests.add(duration)
}

// RecordCacheOperation records one cache read.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		m.cacheHits.Add(1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	m.cacheMisses.Add(1)
}

// ObserveCacheWrite records one cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

// ObserveDBQuery records timing for a labelled unit of database work.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.queries.add(duration)
}

// RecordAllocation counts an allocation attempt.
func (m *MetricsService) RecordAllocation(granted bool) {
	if m == nil {
		return
	}
	if granted {
		m.allocations.WithLabelValues(allocationGranted).Inc()
		m.granted.Add(1)
		return
	}
	m.allocations.WithLabelValues(allocationExhausted).Inc()
	m.exhausted.Add(1)
}

// RecordSessionsMaterialized counts sessions written by a materialization run.
func (m *MetricsService) RecordSessionsMaterialized(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.materialized.Add(float64(n))
	m.sessions.Add(uint64(n))
}

// RecordPromotion counts a promotion attempt by its outcome reason.
func (m *MetricsService) RecordPromotion(result string) {
	if m == nil {
		return
	}
	m.promotions.WithLabelValues(result).Inc()
	if result == PromotionPromoted {
		m.promoted.Add(1)
	}
}

// RecordRelease counts a released class hold.
func (m *MetricsService) RecordRelease(trigger string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(trigger).Inc()
}

func (m *MetricsService) hitRatio() float64 {
	hits, misses := m.cacheHits.Load(), m.cacheMisses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Snapshot summarises the in-process totals.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests, requestMs := m.requests.meanMillis()
	queries, queryMs := m.queries.meanMillis()
	return models.SystemMetrics{
		CacheHitRatio:            m.hitRatio(),
		CacheHits:                m.cacheHits.Load(),
		CacheMisses:              m.cacheMisses.Load(),
		RequestsTotal:            requests,
		AverageRequestDurationMs: requestMs,
		DBQueryCount:             queries,
		AverageDBQueryDurationMs: queryMs,
		AllocationsGranted:       m.granted.Load(),
		AllocationsRejected:      m.exhausted.Load(),
		SessionsMaterialized:     m.sessions.Load(),
		WaitlistPromotions:       m.promoted.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
