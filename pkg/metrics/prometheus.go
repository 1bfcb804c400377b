// Package metrics provides Prometheus metrics for the dashboard server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector the server exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Warehouse
	queryLatency *prometheus.HistogramVec
	queryErrors  *prometheus.CounterVec
	queryRetries prometheus.Counter

	// Result cache
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheWrites  *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec
	cacheRetries *prometheus.CounterVec

	// Refresh jobs
	refreshRuns     *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	refreshLastUnix *prometheus.GaugeVec
	queueSize       prometheus.Gauge
	queueCapacity   prometheus.Gauge
	queueRejected   *prometheus.CounterVec

	// Sessions and live channel
	sessionsActive   prometheus.Gauge
	loginAttempts    *prometheus.CounterVec
	websocketClients prometheus.Gauge
	websocketSent    prometheus.Counter
	websocketDropped prometheus.Counter
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps our series apart from the default registerer.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	customRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "variant",
		subsystem: "dashboard",
		// Warehouse round trips sit between tens of milliseconds and minutes.
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.queryLatency = m.histogramVec("warehouse_query_latency_milliseconds",
		"Warehouse query latency in milliseconds by query kind", "kind")
	m.queryErrors = m.counterVec("warehouse_query_errors_total",
		"Warehouse queries that failed after retries", "kind")
	m.queryRetries = m.counter("warehouse_query_retries_total",
		"Warehouse query attempts that were retried")

	m.cacheHits = m.counterVec("cache_hits_total", "Result cache hits by kind", "kind")
	m.cacheMisses = m.counterVec("cache_misses_total", "Result cache misses by kind", "kind")
	m.cacheWrites = m.counterVec("cache_writes_total", "Result cache writes by kind", "kind")
	m.cacheErrors = m.counterVec("cache_errors_total", "Object storage errors by operation", "op")
	m.cacheRetries = m.counterVec("cache_retries_total", "Object storage attempts that were retried by operation", "op")

	m.refreshRuns = m.counterVec("refresh_runs_total",
		"Refresh jobs by kind and outcome", "kind", "outcome")
	m.refreshDuration = m.histogramVec("refresh_duration_milliseconds",
		"Refresh job duration in milliseconds", "kind")
	m.refreshLastUnix = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "refresh_last_success_unixtime",
		Help:        "Unix time of the last successful refresh by kind",
		ConstLabels: m.constLabels,
	}, []string{"kind"})
	m.queueSize = m.gauge("refresh_queue_size", "Refresh jobs waiting in the queue")
	m.queueCapacity = m.gauge("refresh_queue_capacity", "Refresh queue capacity")
	m.queueRejected = m.counterVec("refresh_queue_rejected_total",
		"Refresh jobs rejected by the queue", "reason")

	m.sessionsActive = m.gauge("sessions_active", "Active login sessions")
	m.loginAttempts = m.counterVec("login_attempts_total", "Login attempts by outcome", "outcome")
	m.websocketClients = m.gauge("websocket_clients", "Connected live-update clients")
	m.websocketSent = m.counter("websocket_messages_sent_total", "Live-update messages delivered")
	m.websocketDropped = m.counter("websocket_messages_dropped_total",
		"Live-update messages dropped for slow clients")
}

// HTTP.

// RecordHTTPRequest increments the request counter and observes its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Warehouse.

// RecordQuery observes a warehouse query latency.
func RecordQuery(kind string, latencyMs float64) {
	globalManager.queryLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordQueryError counts a failed warehouse query.
func RecordQueryError(kind string) {
	globalManager.queryErrors.WithLabelValues(kind).Inc()
}

// RecordQueryRetry counts a retried warehouse attempt.
func RecordQueryRetry() {
	globalManager.queryRetries.Inc()
}

// Cache.

func RecordCacheHit(kind string)   { globalManager.cacheHits.WithLabelValues(kind).Inc() }
func RecordCacheMiss(kind string)  { globalManager.cacheMisses.WithLabelValues(kind).Inc() }
func RecordCacheWrite(kind string) { globalManager.cacheWrites.WithLabelValues(kind).Inc() }

// RecordCacheRetry counts a retried object storage attempt.
func RecordCacheRetry(op string) { globalManager.cacheRetries.WithLabelValues(op).Inc() }
func RecordCacheError(op string)   { globalManager.cacheErrors.WithLabelValues(op).Inc() }

// Refresh.

// RecordRefresh counts a finished refresh job and observes its duration.
func RecordRefresh(kind, outcome string, durationMs float64, finishedUnix float64) {
	globalManager.refreshRuns.WithLabelValues(kind, outcome).Inc()
	globalManager.refreshDuration.WithLabelValues(kind).Observe(durationMs)
	if outcome == "succeeded" {
		globalManager.refreshLastUnix.WithLabelValues(kind).Set(finishedUnix)
	}
}

// UpdateQueueSize sets the number of waiting refresh jobs.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the refresh queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueRejected counts a refresh job the queue refused.
func RecordQueueRejected(reason string) { globalManager.queueRejected.WithLabelValues(reason).Inc() }

// Sessions and live channel.

func UpdateSessionsActive(count int) { globalManager.sessionsActive.Set(float64(count)) }
func RecordLogin(outcome string)     { globalManager.loginAttempts.WithLabelValues(outcome).Inc() }
func UpdateWebsocketClients(n int)   { globalManager.websocketClients.Set(float64(n)) }
func RecordWebsocketSent()           { globalManager.websocketSent.Inc() }
func RecordWebsocketDropped()        { globalManager.websocketDropped.Inc() }

// GetRegistry returns the registry served at /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
