package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics records dispatch cycle outcomes for the polling workers.
type WorkerMetrics struct {
	cycleDuration *prometheus.HistogramVec
	processed     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	dead          *prometheus.CounterVec
}

// NewWorkerMetrics registers the worker metrics on the provided registerer.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		return &WorkerMetrics{}
	}
	cycleDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_cycle_duration_seconds",
		Help:    "Duration of worker poll cycles in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_items_processed",
		Help: "Items completed successfully by a worker.",
	}, []string{"worker"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_items_failed",
		Help: "Items that failed and were scheduled for retry.",
	}, []string{"worker"})
	dead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_items_dead",
		Help: "Items that exhausted their retry budget.",
	}, []string{"worker"})
	reg.MustRegister(cycleDuration, processed, failed, dead)
	return &WorkerMetrics{
		cycleDuration: cycleDuration,
		processed:     processed,
		failed:        failed,
		dead:          dead,
	}
}

// ObserveCycle records the duration of one poll cycle.
func (m *WorkerMetrics) ObserveCycle(worker string, duration time.Duration) {
	if m == nil || m.cycleDuration == nil {
		return
	}
	m.cycleDuration.WithLabelValues(normalizeLabel(worker)).Observe(duration.Seconds())
}

// IncProcessed increments the processed counter.
func (m *WorkerMetrics) IncProcessed(worker string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(normalizeLabel(worker)).Inc()
}

// IncFailed increments the retry counter.
func (m *WorkerMetrics) IncFailed(worker string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(worker)).Inc()
}

// IncDead increments the dead-letter counter.
func (m *WorkerMetrics) IncDead(worker string) {
	if m == nil || m.dead == nil {
		return
	}
	m.dead.WithLabelValues(normalizeLabel(worker)).Inc()
}

func normalizeLabel(worker string) string {
	if worker == "" {
		return "unknown"
	}
	return worker
}
