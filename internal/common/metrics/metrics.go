// internal/common/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tool-evaluator/internal/engine"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluations_total",
			Help: "Evaluations by surface and completeness",
		},
		[]string{"surface", "partial"},
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evaluation_duration_seconds",
			Help:    "Time spent inside the evaluation pipeline",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"surface"},
	)

	EvaluationAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_anomalies_total",
			Help: "Non-fatal anomalies recorded during evaluation",
		},
		[]string{"kind"},
	)

	UpgradePromptsShown = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluation_upgrade_prompts_total",
			Help: "Upgrade prompts returned to callers",
		},
	)

	RuleSetPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ruleset_publishes_total",
			Help: "Rule set publish attempts by result",
		},
		[]string{"result"},
	)

	SnapshotLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ruleset_snapshot_loads_total",
			Help: "Snapshot lookups by the source that answered",
		},
		[]string{"source"},
	)

	AnalyticsFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_publish_failures_total",
			Help: "Evaluation events a sink failed to accept",
		},
		[]string{"sink"},
	)
)

// ObserveEvaluation records one completed evaluation.
func ObserveEvaluation(surface string, res engine.Result, took time.Duration) {
	partial := "false"
	if res.IsPartial {
		partial = "true"
	}
	EvaluationsTotal.WithLabelValues(surface, partial).Inc()
	EvaluationDuration.WithLabelValues(surface).Observe(took.Seconds())
	for kind, n := range res.AnomalyCounts() {
		EvaluationAnomalies.WithLabelValues(string(kind)).Add(float64(n))
	}
	UpgradePromptsShown.Add(float64(len(res.UpgradePrompts)))
}

// ObserveJob records a worker job outcome. errorCode is empty on success.
func ObserveJob(taskType string, took time.Duration, errorCode string) {
	WorkerJobDuration.WithLabelValues(taskType).Observe(took.Seconds())
	if errorCode == "" {
		WorkerJobsCompleted.WithLabelValues(taskType).Inc()
		return
	}
	WorkerJobsFailed.WithLabelValues(taskType, errorCode).Inc()
}
