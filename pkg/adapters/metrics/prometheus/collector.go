// Package prometheus implements the metrics collector on the Prometheus
// client, exposed through the HTTP server's /metrics endpoint.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	runsSubmitted  *prometheus.CounterVec
	runsCompleted  *prometheus.CounterVec
	runDuration    prometheus.Histogram
	stagesExecuted *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	gatesEvaluated *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	workersBusy    prometheus.Gauge
	workersTotal   prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *Collector {
	return &Collector{
		runsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_runs_submitted_total",
				Help: "Total number of pipeline runs submitted",
			},
			[]string{"status"},
		),
		runsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_runs_completed_total",
				Help: "Total number of pipeline runs completed",
			},
			[]string{"status"},
		),
		runDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conduit_run_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
		),
		stagesExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_stages_executed_total",
				Help: "Total number of stages executed",
			},
			[]string{"adapter", "status"},
		),
		stageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_stage_duration_seconds",
				Help:    "Stage execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"adapter"},
		),
		gatesEvaluated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_gates_evaluated_total",
				Help: "Total number of gate policy evaluations",
			},
			[]string{"outcome"},
		),
		notifications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_notifications_total",
				Help: "Total number of run completion notifications",
			},
			[]string{"outcome"},
		),
		workersBusy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_workers_busy",
				Help: "Number of stage workers currently executing",
			},
		),
		workersTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_workers_total",
				Help: "Configured stage worker capacity",
			},
		),
	}
}

// RecordRunSubmitted records a run submission
func (c *Collector) RecordRunSubmitted(status string) {
	c.runsSubmitted.WithLabelValues(status).Inc()
}

// RecordRunCompleted records a run completion
func (c *Collector) RecordRunCompleted(status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(status).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// RecordStageExecuted records a stage execution
func (c *Collector) RecordStageExecuted(adapter, status string, duration time.Duration) {
	c.stagesExecuted.WithLabelValues(adapter, status).Inc()
	c.stageDuration.WithLabelValues(adapter).Observe(duration.Seconds())
}

// RecordGateEvaluated records a gate policy evaluation
func (c *Collector) RecordGateEvaluated(outcome string) {
	c.gatesEvaluated.WithLabelValues(outcome).Inc()
}

// RecordNotification records a notification delivery attempt
func (c *Collector) RecordNotification(outcome string) {
	c.notifications.WithLabelValues(outcome).Inc()
}

// RecordWorkerOccupancy records the worker pool occupancy
func (c *Collector) RecordWorkerOccupancy(busy, capacity int) {
	c.workersBusy.Set(float64(busy))
	c.workersTotal.Set(float64(capacity))
}
