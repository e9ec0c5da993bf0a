package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus metrics for pipeline execution.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	StageAttemptsTotal *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	FlagsRaisedTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline metrics.
//
// sync.Once keeps repeated construction from panicking on duplicate
// collector registration.
//
// Metrics:
//   - takeoff_pipeline_runs_total{pipeline, outcome} - completed runs
//   - takeoff_stage_attempts_total{stage, outcome} - stage attempts
//   - takeoff_stage_duration_seconds{stage} - attempt durations
//   - takeoff_flags_raised_total{type, severity} - flags on run ledgers
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "takeoff_pipeline_runs_total",
					Help: "Total number of completed pipeline runs",
				},
				[]string{"pipeline", "outcome"}, // "success" or "partial"
			),

			StageAttemptsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "takeoff_stage_attempts_total",
					Help: "Total number of stage execution attempts",
				},
				[]string{"stage", "outcome"},
			),

			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "takeoff_stage_duration_seconds",
					Help:    "Duration of stage execution attempts in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
				},
				[]string{"stage"},
			),

			FlagsRaisedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "takeoff_flags_raised_total",
					Help: "Total number of review flags raised on run ledgers",
				},
				[]string{"type", "severity"},
			),
		}
	})

	return globalMetrics
}

// RecordRun records a completed pipeline run. Runs that finish with
// failed stages still carry a usable ledger, so they count as "partial"
// rather than failed.
func (m *Metrics) RecordRun(pipeline string, success bool) {
	outcome := "partial"
	if success {
		outcome = "success"
	}
	m.RunsTotal.WithLabelValues(pipeline, outcome).Inc()
}

// RecordStageAttempt records one stage attempt with its duration.
func (m *Metrics) RecordStageAttempt(stage string, success bool, seconds float64) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.StageAttemptsTotal.WithLabelValues(stage, outcome).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordFlag records a flag raised on a run's ledger.
func (m *Metrics) RecordFlag(flagType, severity string) {
	m.FlagsRaisedTotal.WithLabelValues(flagType, severity).Inc()
}
