package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/uc-timetable-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer,
// the read cache, the stores and the change request engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
	changeRequests  *prometheus.CounterVec
	submissions     prometheus.Counter
	processDuration prometheus.Histogram
	pendingRequests prometheus.Gauge
	invariantErrors prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of timetable store queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	changeRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "change_requests_total",
		Help: "Change requests decided, by status and rejection reason",
	}, []string{"status", "reason"})

	submissions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "change_requests_submitted_total",
		Help: "Change requests accepted into the queue",
	})

	processDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "change_request_pass_duration_seconds",
		Help:    "Duration of a processing pass",
		Buckets: prometheus.DefBuckets,
	})

	pendingRequests := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "change_requests_pending",
		Help: "Change requests waiting for the next processing pass",
	})

	invariantErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_invariant_violations_total",
		Help: "Processing passes that left the timetable inconsistent",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		dbQueryDuration, changeRequests, submissions, processDuration, pendingRequests, invariantErrors, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		dbQueryDuration: dbQueryDuration,
		changeRequests:  changeRequests,
		submissions:     submissions,
		processDuration: processDuration,
		pendingRequests: pendingRequests,
		invariantErrors: invariantErrors,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records store query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordSubmission counts a request accepted into the queue.
func (m *MetricsService) RecordSubmission() {
	if m == nil {
		return
	}
	m.submissions.Inc()
}

// RecordDecisions counts every request settled by a processing pass.
func (m *MetricsService) RecordDecisions(decided []models.ChangeRequest) {
	if m == nil {
		return
	}
	for _, req := range decided {
		m.changeRequests.WithLabelValues(string(req.Status), string(req.Reason)).Inc()
	}
}

// ObserveProcessPass records the pass duration and the queue left behind.
func (m *MetricsService) ObserveProcessPass(duration time.Duration, pending int) {
	if m == nil {
		return
	}
	m.processDuration.Observe(duration.Seconds())
	m.pendingRequests.Set(float64(pending))
}

// SetPendingRequests updates the queue depth gauge.
func (m *MetricsService) SetPendingRequests(pending int) {
	if m == nil {
		return
	}
	m.pendingRequests.Set(float64(pending))
}

// RecordInvariantViolation counts a pass that failed the consistency check.
func (m *MetricsService) RecordInvariantViolation() {
	if m == nil {
		return
	}
	m.invariantErrors.Inc()
}
