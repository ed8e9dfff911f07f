// Package metrics provides Prometheus instrumentation for the coordinator.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a batch run.
type Metrics struct {
	WorkersBusy      prometheus.Gauge
	TasksDispatched  prometheus.Counter
	TasksCompleted   prometheus.Counter
	QueueDepth       prometheus.Gauge
	SendRetriesTotal *prometheus.CounterVec
	TaskDuration     prometheus.Histogram

	registry *prometheus.Registry
}

// New creates and registers all coordinator metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		WorkersBusy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flockd_workers_busy",
				Help: "Number of workers currently processing a task.",
			},
		),
		TasksDispatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flockd_tasks_dispatched_total",
				Help: "Total tasks sent to a worker.",
			},
		),
		TasksCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flockd_tasks_completed_total",
				Help: "Total tasks acknowledged as processed.",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flockd_queue_depth",
				Help: "Number of tasks still waiting for a worker (dynamic mode only).",
			},
		),
		SendRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flockd_send_retries_total",
				Help: "Total retries of a framed send/recv exchange, by reason.",
			},
			[]string{"reason"},
		),
		TaskDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flockd_task_duration_seconds",
				Help:    "Time from dispatching a task to receiving its result.",
				Buckets: prometheus.DefBuckets,
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.WorkersBusy,
		m.TasksDispatched,
		m.TasksCompleted,
		m.QueueDepth,
		m.SendRetriesTotal,
		m.TaskDuration,
	)

	return m
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDispatch records a task being sent to a worker.
func (m *Metrics) RecordDispatch() {
	m.TasksDispatched.Inc()
}

// RecordCompletion records a task result being received, with its latency.
func (m *Metrics) RecordCompletion(duration time.Duration) {
	m.TasksCompleted.Inc()
	m.TaskDuration.Observe(duration.Seconds())
}

// RecordRetry records a retried send/recv exchange, tagged by reason
// ("transient_io" or "nack").
func (m *Metrics) RecordRetry(reason string) {
	m.SendRetriesTotal.WithLabelValues(reason).Inc()
}
