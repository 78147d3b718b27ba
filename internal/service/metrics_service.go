package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// presence engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrites     prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	transitionsTotal *prometheus.CounterVec
	rejectedUpdates  *prometheus.CounterVec
	liveOccupancy    prometheus.Gauge
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
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrites := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_latency_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
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
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_transitions_total",
		Help: "Occupancy transitions recorded by the presence engine",
	}, []string{"kind"})

	rejectedUpdates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_rejected_updates_total",
		Help: "Location updates rejected before classification",
	}, []string{"reason"})

	liveOccupancy := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_live_occupancy",
		Help: "Students currently inside the geofence",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrites, cacheHits, cacheMisses,
		dbQueryDuration, transitionsTotal, rejectedUpdates, liveOccupancy, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrites:      cacheWrites,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		dbQueryDuration:  dbQueryDuration,
		transitionsTotal: transitionsTotal,
		rejectedUpdates:  rejectedUpdates,
		liveOccupancy:    liveOccupancy,
	}
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

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite records cache write timing.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrites == nil {
		return
	}
	m.cacheWrites.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordTransition counts a classified presence transition.
func (m *MetricsService) RecordTransition(kind string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(kind).Inc()
}

// RecordRejectedUpdate counts a location update rejected before any write.
func (m *MetricsService) RecordRejectedUpdate(reason string) {
	if m == nil {
		return
	}
	m.rejectedUpdates.WithLabelValues(reason).Inc()
}

// SetLiveOccupancy publishes the current inside count.
func (m *MetricsService) SetLiveOccupancy(count int) {
	if m == nil {
		return
	}
	m.liveOccupancy.Set(float64(count))
}
