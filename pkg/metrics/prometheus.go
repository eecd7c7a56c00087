// Package metrics provides Prometheus metrics for the churn scoring service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultLatencyBuckets are millisecond buckets for latency histograms.
var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000} //nolint:gochecknoglobals // read-only bucket layout

// Manager manages all Prometheus metrics for the scoring service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Batch metrics
	batchesTotal      *prometheus.CounterVec
	batchDuration     prometheus.Histogram
	batchRows         prometheus.Histogram
	stageTransitions  *prometheus.CounterVec
	rowsScored        prometheus.Counter
	rowsFailed        *prometheus.CounterVec
	batchesDeduped    prometheus.Counter
	batchesInProgress prometheus.Gauge

	// Scoring engine metrics
	scoringLatency prometheus.Histogram
	scoringErrors  *prometheus.CounterVec
	modelInfo      *prometheus.GaugeVec

	// Queue metrics
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    *prometheus.CounterVec

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActive            prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Report store metrics
	reportsStored      prometheus.Gauge
	reportStoreLatency *prometheus.HistogramVec
	reportStoreErrors  *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "churn",
		subsystem:        "scoring",
		histogramBuckets: defaultLatencyBuckets,
		enabled:          true,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Option configures a Manager before its metrics are registered.
type Option func(*Manager)

// WithNamespace sets the namespace of every metric.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem of the scoring metrics. System metrics
// always use the "system" subsystem.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithMetricPrefix prepends prefix to every metric name.
func WithMetricPrefix(prefix string) Option {
	return func(m *Manager) { m.metricPrefix = prefix }
}

// WithLatencyBuckets replaces the millisecond buckets of latency histograms.
func WithLatencyBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithConstLabels attaches labels to every metric.
func WithConstLabels(labels map[string]string) Option {
	return func(m *Manager) {
		if labels != nil {
			m.constLabels = labels
		}
	}
}

// WithMetricsEnabled turns recording on or off. Metrics are registered either way.
func WithMetricsEnabled(enabled bool) Option {
	return func(m *Manager) { m.enabled = enabled }
}

// WithRegistry registers metrics on r instead of the default registerer.
func WithRegistry(r prometheus.Registerer) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)
	ms := m.histogramBuckets

	m.batchesTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("batches_total"),
		Help: "Total number of batches by terminal outcome",
	}, []string{"mode", "outcome"})

	m.batchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("batch_duration_milliseconds"),
		Help:    "End-to-end batch processing time in milliseconds",
		Buckets: ms,
	})

	m.batchRows = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("batch_rows"),
		Help:    "Number of input rows per batch",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	m.stageTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("stage_transitions_total"),
		Help: "Batch state machine transitions by target state",
	}, []string{"state"})

	m.rowsScored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("rows_scored_total"),
		Help: "Total number of rows that received a probability and label",
	})

	m.rowsFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("rows_failed_total"),
		Help: "Total number of rows rejected, by error kind",
	}, []string{"kind"})

	m.batchesDeduped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("batches_deduplicated_total"),
		Help: "Async uploads answered with an existing batch id",
	})

	m.batchesInProgress = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("batches_in_progress"),
		Help: "Batches currently being processed",
	})

	m.scoringLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("scoring_latency_milliseconds"),
		Help:    "Time spent evaluating the classifier for one batch",
		Buckets: ms,
	})

	m.scoringErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("scoring_errors_total"),
		Help: "Scoring engine errors by kind",
	}, []string{"kind"})

	m.modelInfo = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("model_info"),
		Help: "Loaded classifier identity; value is always 1",
	}, []string{"name", "version", "hash"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_size"),
		Help: "Current number of batches waiting in the job queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_capacity"),
		Help: "Maximum number of queued batches",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_utilization_ratio"),
		Help: "Queue size divided by capacity",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_enqueued_total"),
		Help: "Batches accepted into the job queue",
	})

	m.queueDequeued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_dequeued_total"),
		Help: "Batches handed to workers",
	})

	m.queueRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_rejected_total"),
		Help: "Batches refused by the job queue, by reason",
	}, []string{"reason"})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("worker_count"),
		Help: "Configured number of batch workers",
	})

	m.workerActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("worker_active"),
		Help: "Workers currently processing a batch",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("worker_processing_latency_milliseconds"),
		Help:    "Time a worker spends on one queued batch including persistence",
		Buckets: ms,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("worker_errors_total"),
		Help: "Queued batches that ended in a worker-side error",
	})

	m.reportsStored = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("reports_stored"),
		Help: "Number of batch records held by the report store",
	})

	m.reportStoreLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("report_store_latency_milliseconds"),
		Help:    "Report store operation latency",
		Buckets: ms,
	}, []string{"op"})

	m.reportStoreErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("report_store_errors_total"),
		Help: "Report store failures by operation",
	}, []string{"op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("http_requests_total"),
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "HTTP request duration in milliseconds",
		Buckets: ms,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("http_errors_total"),
		Help: "HTTP error responses by endpoint and error type",
	}, []string{"endpoint", "method", "error_type"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("errors_by_component_total"),
		Help: "Errors by component and error type",
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system", ConstLabels: labels,
		Name: m.name("memory_usage_bytes"),
		Help: "Current heap allocation in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system", ConstLabels: labels,
		Name: m.name("goroutine_count"),
		Help: "Current number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "system", ConstLabels: labels,
		Name:    m.name("gc_pause_milliseconds"),
		Help:    "Average GC pause time in milliseconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
	})
}

// Instance methods. Each is a no-op when the manager is disabled.

// RecordBatch records a finished batch with its outcome and size.
func (m *Manager) RecordBatch(mode, outcome string, rows int, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.batchesTotal.WithLabelValues(mode, outcome).Inc()
	m.batchDuration.Observe(float64(duration.Milliseconds()))
	m.batchRows.Observe(float64(rows))
}

// RecordStageTransition counts entry into a batch state.
func (m *Manager) RecordStageTransition(state string) {
	if !m.enabled {
		return
	}
	m.stageTransitions.WithLabelValues(state).Inc()
}

// RecordRowsScored adds successfully labeled rows.
func (m *Manager) RecordRowsScored(n int) {
	if !m.enabled || n <= 0 {
		return
	}
	m.rowsScored.Add(float64(n))
}

// RecordRowFailed counts one rejected row.
func (m *Manager) RecordRowFailed(kind string) {
	if !m.enabled {
		return
	}
	m.rowsFailed.WithLabelValues(kind).Inc()
}

// RecordScoringLatency observes classifier evaluation time.
func (m *Manager) RecordScoringLatency(latencyMs float64) {
	if !m.enabled {
		return
	}
	m.scoringLatency.Observe(latencyMs)
}

// RecordScoringError counts an engine error.
func (m *Manager) RecordScoringError(kind string) {
	if !m.enabled {
		return
	}
	m.scoringErrors.WithLabelValues(kind).Inc()
}

// SetModelInfo publishes the loaded model identity.
func (m *Manager) SetModelInfo(name, version, hash string) {
	if !m.enabled {
		return
	}
	m.modelInfo.Reset()
	m.modelInfo.WithLabelValues(name, version, hash).Set(1)
}

// Package-level helpers on the global manager.

// RecordBatch records a finished batch with its outcome and size.
func RecordBatch(mode, outcome string, rows int, duration time.Duration) {
	globalManager.RecordBatch(mode, outcome, rows, duration)
}

// RecordStageTransition counts entry into a batch state.
func RecordStageTransition(state string) { globalManager.RecordStageTransition(state) }

// RecordRowsScored adds successfully labeled rows.
func RecordRowsScored(n int) { globalManager.RecordRowsScored(n) }

// RecordRowFailed counts one rejected row.
func RecordRowFailed(kind string) { globalManager.RecordRowFailed(kind) }

// RecordBatchDeduplicated counts an async upload answered from the dedupe index.
func RecordBatchDeduplicated() { globalManager.batchesDeduped.Inc() }

// UpdateBatchesInProgress adjusts the in-flight batch gauge by delta.
func UpdateBatchesInProgress(delta int) { globalManager.batchesInProgress.Add(float64(delta)) }

// RecordScoringLatency observes classifier evaluation time.
func RecordScoringLatency(latencyMs float64) { globalManager.RecordScoringLatency(latencyMs) }

// RecordScoringError counts an engine error.
func RecordScoringError(kind string) { globalManager.RecordScoringError(kind) }

// SetModelInfo publishes the loaded model identity.
func SetModelInfo(name, version, hash string) { globalManager.SetModelInfo(name, version, hash) }

// Queue metrics.

// UpdateQueueSize sets the queue size gauge.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization gauge.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts an accepted batch.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue counts a batch handed to a worker.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueRejected counts a refused batch.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// Worker metrics.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActive adjusts the busy worker gauge by delta.
func UpdateWorkerActive(delta int) { globalManager.workerActive.Add(float64(delta)) }

// RecordWorkerProcessingLatency observes one worker job.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed worker job.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// Report store metrics.

// UpdateReportsStored sets the stored batch count.
func UpdateReportsStored(count int) { globalManager.reportsStored.Set(float64(count)) }

// RecordReportStoreLatency observes a store operation.
func RecordReportStoreLatency(op string, latencyMs float64) {
	globalManager.reportStoreLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordReportStoreError counts a failed store operation.
func RecordReportStoreError(op string) {
	globalManager.reportStoreErrors.WithLabelValues(op).Inc()
}

// HTTP metrics.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint counts an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent counts an error in a named component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the heap allocation gauge.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
