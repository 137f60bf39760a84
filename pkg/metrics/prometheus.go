// Package metrics provides Prometheus metrics for the leadflow dispatch service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Lead lifecycle
	leadsIngested  prometheus.Counter
	leadsDuplicate prometheus.Counter
	leadsRejected  prometheus.Counter
	leadsFinalized *prometheus.CounterVec
	leadsActive    prometheus.Gauge

	// Ranking
	rankingLatency    prometheus.Histogram
	rankingCandidates prometheus.Histogram

	// Offers and claims
	offersIssued      prometheus.Counter
	offerResponses    *prometheus.CounterVec
	offersExpired     prometheus.Counter
	claims            *prometheus.CounterVec
	claimContention   prometheus.Counter
	paymentLatency    prometheus.Histogram
	paymentRetries    prometheus.Counter
	notificationsSent *prometheus.CounterVec
	suspensions       prometheus.Counter

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

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

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the package-level helpers

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out of /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "leadflow",
		subsystem:        "dispatch",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.leadsIngested = m.counter("leads_ingested_total", "Leads accepted for dispatch")
	m.leadsDuplicate = m.counter("leads_duplicate_total", "Lead submissions dropped as duplicates")
	m.leadsRejected = m.counter("leads_rejected_total", "Lead submissions rejected as malformed")
	m.leadsFinalized = m.counterVec("leads_finalized_total", "Leads that reached a terminal state", "status")
	m.leadsActive = m.gauge("leads_active", "Leads currently in the cascade")

	m.rankingLatency = m.histogram("ranking_latency_milliseconds", "Time spent ranking candidates for a lead", m.histogramBuckets)
	m.rankingCandidates = m.histogram("ranking_candidates", "Number of ranked candidates per lead",
		[]float64{0, 1, 2, 3, 5, 10, 20, 50, 100})

	m.offersIssued = m.counter("offers_issued_total", "Offers sent to candidates")
	m.offerResponses = m.counterVec("offer_responses_total", "Candidate responses by outcome", "outcome")
	m.offersExpired = m.counter("offers_expired_total", "Offers that reached their deadline without a response")
	m.claims = m.counterVec("claims_total", "Claims by settlement status", "status")
	m.claimContention = m.counter("claim_contention_total", "Acceptances rejected because another claim won")
	m.paymentLatency = m.histogram("payment_latency_milliseconds", "Payment gateway round trip", m.histogramBuckets)
	m.paymentRetries = m.counter("payment_retries_total", "Payment calls retried with the same idempotency key")
	m.notificationsSent = m.counterVec("notifications_total", "Notification attempts by kind and result", "kind", "result")
	m.suspensions = m.counter("candidate_suspensions_total", "Candidates suspended after repeated payment failures")

	m.queueSize = m.gauge("queue_size", "Current number of queued tasks")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued tasks")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Tasks enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Tasks dequeued")
	m.queueRejected = m.counter("queue_rejected_total", "Tasks rejected by the queue")

	m.workerCount = m.gauge("worker_count", "Active workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Task processing time", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Tasks that failed in a worker")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_request_duration_milliseconds",
		Help: "HTTP request duration in milliseconds", Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and kind", "component", "kind")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100})
}

// RecordLeadIngested counts an accepted lead submission.
func RecordLeadIngested() { globalManager.leadsIngested.Inc() }

// RecordLeadDuplicate counts a duplicate lead submission.
func RecordLeadDuplicate() { globalManager.leadsDuplicate.Inc() }

// RecordLeadRejected counts a malformed lead.
func RecordLeadRejected() { globalManager.leadsRejected.Inc() }

// RecordLeadFinalized counts a lead reaching a terminal status.
func RecordLeadFinalized(status string) { globalManager.leadsFinalized.WithLabelValues(status).Inc() }

// UpdateLeadsActive sets the number of leads in the cascade.
func UpdateLeadsActive(n int) { globalManager.leadsActive.Set(float64(n)) }

// RecordRanking observes one ranking computation.
func RecordRanking(latencyMs float64, candidates int) {
	globalManager.rankingLatency.Observe(latencyMs)
	globalManager.rankingCandidates.Observe(float64(candidates))
}

// RecordOfferIssued counts an offer sent to a candidate.
func RecordOfferIssued() { globalManager.offersIssued.Inc() }

// RecordOfferResponse counts a candidate response by outcome.
func RecordOfferResponse(outcome string) { globalManager.offerResponses.WithLabelValues(outcome).Inc() }

// RecordOfferExpired counts an offer that hit its deadline.
func RecordOfferExpired() { globalManager.offersExpired.Inc() }

// RecordClaim counts a claim reaching status.
func RecordClaim(status string) { globalManager.claims.WithLabelValues(status).Inc() }

// RecordClaimContention counts an acceptance that lost the race.
func RecordClaimContention() { globalManager.claimContention.Inc() }

// RecordPaymentLatency observes one gateway call.
func RecordPaymentLatency(latencyMs float64) { globalManager.paymentLatency.Observe(latencyMs) }

// RecordPaymentRetry counts a same-key payment retry.
func RecordPaymentRetry() { globalManager.paymentRetries.Inc() }

// RecordNotification counts a notification attempt; result is "ok" or "error".
func RecordNotification(kind, result string) {
	globalManager.notificationsSent.WithLabelValues(kind, result).Inc()
}

// RecordSuspension counts a candidate suspension.
func RecordSuspension() { globalManager.suspensions.Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(ratio float64) { globalManager.queueUtilization.Set(ratio) }

// RecordQueueEnqueue counts an enqueued task.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue counts a dequeued task.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueRejected counts a task the queue refused.
func RecordQueueRejected() { globalManager.queueRejected.Inc() }

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }

// RecordWorkerProcessingLatency observes task processing time.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed task.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest records one HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordError counts an error for a component.
func RecordError(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(n int) { globalManager.systemGoroutineCount.Set(float64(n)) }

// RecordSystemGCPauseTime observes average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry backing the package-level helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Since returns milliseconds elapsed since start.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
