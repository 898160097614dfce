package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheStats is implemented by the simulator.
type CacheStats interface {
	CacheHits() uint64
	CacheMisses() uint64
	CacheEntries() int
}

type Metrics struct {
	registry            *prometheus.Registry
	httpRequestsTotal   *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	subscribers         prometheus.Gauge
	broadcastsTotal     prometheus.Counter
	broadcastDeliveries *prometheus.CounterVec
	archiveErrors       prometheus.Counter
}

// NewMetrics registers the service collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "urbansim_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "urbansim_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "urbansim_ws_subscribers",
			Help: "Currently connected live-update subscribers.",
		}),
		broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urbansim_broadcasts_total",
			Help: "Live update ticks broadcast.",
		}),
		broadcastDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "urbansim_broadcast_deliveries_total",
			Help: "Messages written to subscribers by result.",
		}, []string{"result"}),
		archiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urbansim_archive_errors_total",
			Help: "Snapshot records the archive destination rejected.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.subscribers,
		m.broadcastsTotal,
		m.broadcastDeliveries,
		m.archiveErrors,
	)
	return m
}

// ObserveCache exposes the simulator's cache counters.
func (m *Metrics) ObserveCache(stats CacheStats) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "urbansim_traffic_cache_hits_total",
			Help: "Traffic grid requests served from the cache.",
		}, func() float64 { return float64(stats.CacheHits()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "urbansim_traffic_cache_misses_total",
			Help: "Traffic grid requests that generated a new grid.",
		}, func() float64 { return float64(stats.CacheMisses()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "urbansim_traffic_cache_entries",
			Help: "Cached (hour, reduction) grids; never evicted.",
		}, func() float64 { return float64(stats.CacheEntries()) }),
	)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
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

func (m *Metrics) BroadcastSent(delivered, failed int) {
	if m == nil {
		return
	}
	m.broadcastsTotal.Inc()
	m.broadcastDeliveries.WithLabelValues("ok").Add(float64(delivered))
	m.broadcastDeliveries.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ArchiveFailed() {
	if m == nil {
		return
	}
	m.archiveErrors.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Middleware records request counts and durations labelled with the mux route
// template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
	})
}
