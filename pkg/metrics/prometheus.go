// Package metrics provides Prometheus metrics for the vidrank service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by vidrank.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Matching
	matchesTotal     *prometheus.CounterVec
	fallbacksTotal   *prometheus.CounterVec
	itemsServed      prometheus.Counter
	resolveFailures  *prometheus.CounterVec
	matchLatency     *prometheus.HistogramVec
	rankingLatency   prometheus.Histogram
	rankingsComputed prometheus.Counter
	rankedItems      prometheus.Gauge

	// Judgment log
	recordsTotal     prometheus.Gauge
	recordsAppended  prometheus.Counter
	recordsPopped    prometheus.Counter
	duplicateSubmits prometheus.Counter

	// Upstream item store
	breakerState *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// Process
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcPause        prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "vidrank",
		subsystem:        "engine",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.matchesTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "matches_total",
		Help:      "Total number of match requests by executed strategy",
	}, []string{"strategy"})

	m.fallbacksTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "match_fallbacks_total",
		Help:      "Match requests that degraded to random selection, by requested strategy",
	}, []string{"strategy"})

	m.itemsServed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "items_served_total",
		Help:      "Total number of resolved items returned by the matcher",
	})

	m.resolveFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolve_failures_total",
		Help:      "Item ids skipped because the item store could not resolve them",
	}, []string{"reason"})

	m.matchLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "match_latency_milliseconds",
		Help:      "Match latency in milliseconds by requested strategy",
		Buckets:   m.histogramBuckets,
	}, []string{"strategy"})

	m.rankingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_latency_milliseconds",
		Help:      "Time spent recomputing the ranking from the judgment log",
		Buckets:   m.histogramBuckets,
	})

	m.rankingsComputed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rankings_computed_total",
		Help:      "Total number of full ranking recomputations",
	})

	m.rankedItems = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranked_items",
		Help:      "Number of items in the most recently computed ranking",
	})

	m.recordsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "log",
		Name:      "records",
		Help:      "Number of judgment records in the log",
	})

	m.recordsAppended = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "log",
		Name:      "records_appended_total",
		Help:      "Total number of judgment records appended",
	})

	m.recordsPopped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "log",
		Name:      "records_popped_total",
		Help:      "Total number of judgment records removed by undo",
	})

	m.duplicateSubmits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "log",
		Name:      "duplicate_submits_total",
		Help:      "Submissions ignored because their request key was already seen",
	})

	m.breakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "items",
		Name:      "breaker_state",
		Help:      "Circuit breaker state of the item store (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.httpErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "HTTP responses with status >= 400 by endpoint and error type",
	}, []string{"endpoint", "method", "error_type"})

	m.memoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_bytes",
		Help:      "Heap bytes allocated",
	})

	m.goroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutines",
		Help:      "Number of live goroutines",
	})

	m.gcPause = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "gc_pause_avg_milliseconds",
		Help:      "Average GC pause time",
	})
}

// RecordMatch counts a match executed with the given strategy.
func RecordMatch(strategy string) {
	globalManager.matchesTotal.WithLabelValues(strategy).Inc()
}

// RecordFallback counts a match that degraded to random selection.
func RecordFallback(requested string) {
	globalManager.fallbacksTotal.WithLabelValues(requested).Inc()
}

// RecordItemsServed adds n resolved items to the served counter.
func RecordItemsServed(n int) {
	globalManager.itemsServed.Add(float64(n))
}

// RecordResolveFailure counts an item id skipped during resolution.
func RecordResolveFailure(reason string) {
	globalManager.resolveFailures.WithLabelValues(reason).Inc()
}

// RecordMatchLatency records match latency in milliseconds.
func RecordMatchLatency(strategy string, latencyMs float64) {
	globalManager.matchLatency.WithLabelValues(strategy).Observe(latencyMs)
}

// RecordRanking records one ranking recomputation and its size.
func RecordRanking(latencyMs float64, items int) {
	globalManager.rankingsComputed.Inc()
	globalManager.rankingLatency.Observe(latencyMs)
	globalManager.rankedItems.Set(float64(items))
}

// UpdateRecordsTotal sets the judgment record gauge.
func UpdateRecordsTotal(count int) {
	globalManager.recordsTotal.Set(float64(count))
}

// RecordAppend counts an appended judgment record.
func RecordAppend() {
	globalManager.recordsAppended.Inc()
}

// RecordPop counts a judgment record removed by undo.
func RecordPop() {
	globalManager.recordsPopped.Inc()
}

// RecordDuplicateSubmit counts a submission dropped as a duplicate.
func RecordDuplicateSubmit() {
	globalManager.duplicateSubmits.Inc()
}

// UpdateBreakerState publishes a breaker state (0 closed, 1 half-open, 2 open).
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordHTTPError counts an HTTP error response.
func RecordHTTPError(endpoint, method, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage publishes allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.memoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount publishes the goroutine count.
func UpdateSystemGoroutineCount(n int) {
	globalManager.goroutineCount.Set(float64(n))
}

// RecordSystemGCPauseTime publishes the average GC pause.
func RecordSystemGCPauseTime(ms float64) {
	globalManager.gcPause.Set(ms)
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
