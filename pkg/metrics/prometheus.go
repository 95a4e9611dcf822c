// Package metrics provides Prometheus metrics for frame event extraction.
package metrics

import (
	"fmt"
	"math"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the extractor.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	customLabels   map[string]string
	registry       prometheus.Registerer

	// Indexing
	framesIndexed prometheus.Counter
	indexIssues   *prometheus.CounterVec

	// Scanning
	framesScanned  prometheus.Counter
	triggers       prometheus.Counter
	windowsEmitted prometheus.Counter
	windowFrames   prometheus.Histogram
	fetchLatency   prometheus.Histogram
	fetchErrors    prometheus.Counter
	scanProgress   prometheus.Gauge

	// Persistence
	eventsWritten *prometheus.CounterVec
	framesWritten prometheus.Counter
	bytesWritten  prometheus.Counter
	encodeLatency prometheus.Histogram
	putLatency    *prometheus.HistogramVec
	writeErrors   *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// Runs
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
	m := newManager(opts...)
	m.initializeMetrics()
	return m
}

// Configure replaces the global manager with one built from opts on a fresh
// registry. It is not safe to call while metrics are being recorded; call it
// once at startup.
func Configure(opts ...Option) error {
	registry := prometheus.NewRegistry()
	m := newManager(append(append([]Option{}, opts...), WithPrometheusRegistry(registry))...)
	if err := m.validate(); err != nil {
		return err
	}
	m.initializeMetrics()

	globalManager = m
	customRegistry = registry
	return nil
}

func newManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "frameevents",
		subsystem:      "extract",
		latencyBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		customLabels:   make(map[string]string),
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// variableLabels are used by the metric vectors; constant labels must differ.
var variableLabels = map[string]bool{ //nolint:gochecknoglobals
	"kind": true, "sink": true, "stage": true, "reason": true, "status": true,
	"endpoint": true, "method": true, "status_code": true, "error_type": true,
}

// validate rejects options the registry would panic on.
func (m *Manager) validate() error {
	if !validName(m.namespace) {
		return fmt.Errorf("%w: namespace %q", ErrInvalidOption, m.namespace)
	}
	for name := range m.customLabels {
		if !validName(name) || strings.HasPrefix(name, "__") || variableLabels[name] {
			return fmt.Errorf("%w: label %q", ErrInvalidOption, name)
		}
	}
	for i, b := range m.latencyBuckets {
		if math.IsNaN(b) || (i > 0 && b <= m.latencyBuckets[i-1]) {
			return fmt.Errorf("%w: latency buckets must increase, got %v", ErrInvalidOption, m.latencyBuckets)
		}
	}
	return nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.framesIndexed = m.counter("frames_indexed_total", "Frames accepted by the indexer")
	m.indexIssues = m.counterVec("index_issues_total", "Identifiers skipped by the indexer by issue kind", "kind")

	m.framesScanned = m.counter("frames_scanned_total", "Frames whose maximum was compared against the threshold")
	m.triggers = m.counter("triggers_total", "Frames whose maximum reached the threshold")
	m.windowsEmitted = m.counter("windows_emitted_total", "Event windows emitted by the scanner")
	m.windowFrames = m.histogram("window_frames", "Frames per emitted event window",
		[]float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144})
	m.fetchLatency = m.histogram("fetch_latency_milliseconds", "Frame fetch latency in milliseconds", m.latencyBuckets)
	m.fetchErrors = m.counter("fetch_errors_total", "Frame fetches that failed")
	m.scanProgress = m.gauge("scan_progress_ratio", "Cursor position divided by sequence length")

	m.eventsWritten = m.counterVec("events_written_total", "Event artifacts persisted by sink", "sink")
	m.framesWritten = m.counter("frames_written_total", "Frames persisted inside event artifacts")
	m.bytesWritten = m.counter("bytes_written_total", "Encoded bytes persisted")
	m.encodeLatency = m.histogram("encode_latency_milliseconds", "Stack encoding latency in milliseconds", m.latencyBuckets)
	m.putLatency = m.histogramVec("put_latency_milliseconds", "Sink put latency in milliseconds", m.latencyBuckets, "sink")
	m.writeErrors = m.counterVec("write_errors_total", "Event persistence failures by sink and stage", "sink", "stage")

	m.queueSize = m.gauge("queue_size", "Write jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum write jobs the queue holds")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Write jobs enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Write jobs dequeued")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Rejected enqueues by reason", "reason")

	m.workerActiveCount = m.gauge("worker_active_count", "Writer workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time to fetch, encode and persist one event in milliseconds", m.latencyBuckets)

	m.runs = m.counterVec("runs_total", "Extraction runs by outcome", "status")
	m.runDuration = m.histogram("run_duration_seconds", "Extraction run duration in seconds", prometheus.DefBuckets)

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		m.latencyBuckets, "endpoint", "method", "status_code")
	m.httpErrors = m.counterVec("http_errors_total", "HTTP error responses by endpoint, method and error type",
		"endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordFramesIndexed adds n accepted frames.
func RecordFramesIndexed(n int) { globalManager.framesIndexed.Add(float64(n)) }

// RecordIndexIssue counts one skipped identifier of the given kind.
func RecordIndexIssue(kind string) { globalManager.indexIssues.WithLabelValues(kind).Inc() }

// RecordFrameScanned counts one threshold comparison.
func RecordFrameScanned() { globalManager.framesScanned.Inc() }

// RecordTrigger counts one triggering frame.
func RecordTrigger() { globalManager.triggers.Inc() }

// RecordWindowEmitted counts one window covering frames frames.
func RecordWindowEmitted(frames int) {
	globalManager.windowsEmitted.Inc()
	globalManager.windowFrames.Observe(float64(frames))
}

// RecordFetchLatency records frame fetch latency in milliseconds.
func RecordFetchLatency(latencyMs float64) { globalManager.fetchLatency.Observe(latencyMs) }

// RecordFetchError counts one failed frame fetch.
func RecordFetchError() { globalManager.fetchErrors.Inc() }

// UpdateScanProgress sets the scan progress ratio.
func UpdateScanProgress(ratio float64) { globalManager.scanProgress.Set(ratio) }

// RecordEventWritten counts one persisted artifact.
func RecordEventWritten(sink string, frames int, bytes int64) {
	globalManager.eventsWritten.WithLabelValues(sink).Inc()
	globalManager.framesWritten.Add(float64(frames))
	globalManager.bytesWritten.Add(float64(bytes))
}

// RecordEncodeLatency records stack encoding latency in milliseconds.
func RecordEncodeLatency(latencyMs float64) { globalManager.encodeLatency.Observe(latencyMs) }

// RecordPutLatency records sink put latency in milliseconds.
func RecordPutLatency(sink string, latencyMs float64) {
	globalManager.putLatency.WithLabelValues(sink).Observe(latencyMs)
}

// RecordWriteError counts a persistence failure at stage (fetch, encode, put).
func RecordWriteError(sink, stage string) {
	globalManager.writeErrors.WithLabelValues(sink, stage).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueue.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeue.Inc() }

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records per-event worker latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordRun counts a finished run with its status (ok, failed, canceled, empty).
func RecordRun(status string, seconds float64) {
	globalManager.runs.WithLabelValues(status).Inc()
	globalManager.runDuration.Observe(seconds)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError counts an error response.
func RecordHTTPError(endpoint, method, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Gatherer returns the gatherer behind m, or ErrRegistryMismatch when m was
// built on a registerer that cannot be gathered.
func (m *Manager) Gatherer() (prometheus.Gatherer, error) {
	g, ok := m.registry.(prometheus.Gatherer)
	if !ok {
		return nil, ErrRegistryMismatch
	}
	return g, nil
}
