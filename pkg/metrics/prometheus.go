// Package metrics provides Prometheus metrics for the SkillSync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Score engine
	scoreComputations   *prometheus.CounterVec
	scoreFallbacks      *prometheus.CounterVec
	scoreRecordFailures prometheus.Counter
	scoreLatency        prometheus.Histogram
	scoreValue          prometheus.Histogram

	// Peer reviews
	reviewsSubmitted prometheus.Counter
	reviewsRejected  *prometheus.CounterVec

	// Recompute queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec
	recomputeCoalesced prometheus.Counter

	// Recompute workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Realtime hub
	hubConnections    prometheus.Gauge
	hubRooms          prometheus.Gauge
	hubBroadcasts     *prometheus.CounterVec
	hubDroppedSends   prometheus.Counter
	hubFramesReceived *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "skillsync",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.scoreComputations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "score_computations_total",
		Help:      "Commitment score computations by outcome (ok, fallback)",
	}, []string{"outcome"})

	m.scoreFallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "score_fallbacks_total",
		Help:      "Score engine reads that degraded to a default value, by operation",
	}, []string{"op"})

	m.scoreRecordFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "score_record_failures_total",
		Help:      "Score history or user score writes that failed",
	})

	m.scoreLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "score_compute_latency_milliseconds",
		Help:      "Latency of a full compute (read, derive, record) in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.scoreValue = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "score_value",
		Help:      "Distribution of computed commitment scores",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	m.reviewsSubmitted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reviews_submitted_total",
		Help:      "Peer reviews accepted",
	})

	m.reviewsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reviews_rejected_total",
		Help:      "Peer reviews rejected, by reason",
	}, []string{"reason"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_queue_size",
		Help:      "Pending score recompute jobs",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_queue_capacity",
		Help:      "Capacity of the score recompute queue",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_enqueued_total",
		Help:      "Score recompute jobs accepted by the queue",
	})

	m.queueEnqueueErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_enqueue_errors_total",
		Help:      "Score recompute jobs refused by the queue, by reason",
	}, []string{"reason"})

	m.recomputeCoalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_coalesced_total",
		Help:      "Recompute requests folded into an already pending job",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_workers",
		Help:      "Number of recompute workers",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_latency_milliseconds",
		Help:      "Time a worker spends on one recompute job",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_errors_total",
		Help:      "Recompute jobs that failed",
	})

	m.hubConnections = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "hub_connections",
		Help:      "Open realtime connections",
	})

	m.hubRooms = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "hub_rooms",
		Help:      "Project rooms with at least one member",
	})

	m.hubBroadcasts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "hub_broadcasts_total",
		Help:      "Envelopes fanned out to project rooms, by event",
	}, []string{"event"})

	m.hubDroppedSends = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "hub_dropped_sends_total",
		Help:      "Deliveries dropped because a member's send buffer was full",
	})

	m.hubFramesReceived = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "hub_frames_received_total",
		Help:      "Frames read from clients, by op",
	}, []string{"op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_total",
		Help:      "Errors by component and type",
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Score engine.

// RecordScoreComputed records a completed computation and its value.
func RecordScoreComputed(score int, fallback bool, latencyMs float64) {
	outcome := "ok"
	if fallback {
		outcome = "fallback"
	}
	globalManager.scoreComputations.WithLabelValues(outcome).Inc()
	globalManager.scoreLatency.Observe(latencyMs)
	if !fallback {
		globalManager.scoreValue.Observe(float64(score))
	}
}

// RecordScoreFallback counts a read that degraded to a default value.
func RecordScoreFallback(op string) {
	globalManager.scoreFallbacks.WithLabelValues(op).Inc()
}

// RecordScoreRecordFailure counts a failed score write.
func RecordScoreRecordFailure() {
	globalManager.scoreRecordFailures.Inc()
}

// Reviews.

// RecordReviewSubmitted counts an accepted peer review.
func RecordReviewSubmitted() {
	globalManager.reviewsSubmitted.Inc()
}

// RecordReviewRejected counts a rejected peer review.
func RecordReviewRejected(reason string) {
	globalManager.reviewsRejected.WithLabelValues(reason).Inc()
}

// Recompute queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueEnqueueError counts a refused job.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordRecomputeCoalesced counts a request folded into a pending job.
func RecordRecomputeCoalesced() {
	globalManager.recomputeCoalesced.Inc()
}

// Workers.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Hub.

// UpdateHubConnections sets the number of open realtime connections.
func UpdateHubConnections(count int) {
	globalManager.hubConnections.Set(float64(count))
}

// UpdateHubRooms sets the number of live rooms.
func UpdateHubRooms(count int) {
	globalManager.hubRooms.Set(float64(count))
}

// RecordHubBroadcast counts one fan-out of event.
func RecordHubBroadcast(event string) {
	globalManager.hubBroadcasts.WithLabelValues(event).Inc()
}

// RecordHubDroppedSend counts a delivery dropped on a full buffer.
func RecordHubDroppedSend() {
	globalManager.hubDroppedSends.Inc()
}

// RecordHubFrame counts an inbound client frame.
func RecordHubFrame(op string) {
	globalManager.hubFramesReceived.WithLabelValues(op).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
