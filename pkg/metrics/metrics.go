// Package metrics provides Prometheus metrics for the Aster service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScheduleRunsTotal tracks scheduling runs by strategy and outcome
	ScheduleRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of scheduling runs by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// ScheduleRunDuration tracks scheduling run duration in seconds
	ScheduleRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduling runs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"strategy"},
	)

	// TasksScheduled tracks tasks placed per run
	TasksScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "scheduler",
			Name:      "tasks_scheduled_total",
			Help:      "Total number of tasks placed across runs",
		},
	)

	// TasksUnscheduled tracks tasks that could not be placed
	TasksUnscheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "scheduler",
			Name:      "tasks_unscheduled_total",
			Help:      "Total number of tasks left unscheduled, by reason",
		},
		[]string{"reason"},
	)

	// AllocatorIterations tracks candidate probes per successful allocation
	AllocatorIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "allocator",
			Name:      "iterations",
			Help:      "Candidate start instants probed per successful allocation",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000, 5000},
		},
	)

	// OptimizerTrialsTotal tracks capacity trials by strategy and outcome
	OptimizerTrialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "optimizer",
			Name:      "trials_total",
			Help:      "Total number of capacity trials by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// ValidationFailures tracks validation violations by kind
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "validator",
			Name:      "violations_total",
			Help:      "Total number of validation violations by kind",
		},
		[]string{"kind"},
	)
)

// RecordScheduleRun records a scheduling run outcome
func RecordScheduleRun(strategy, outcome string, durationSeconds float64) {
	ScheduleRunsTotal.WithLabelValues(strategy, outcome).Inc()
	ScheduleRunDuration.WithLabelValues(strategy).Observe(durationSeconds)
}

// ObserveAllocatorIterations records the probe count of a successful allocation
func ObserveAllocatorIterations(iterations float64) {
	AllocatorIterations.Observe(iterations)
}

// RecordOptimizerTrial records one capacity trial outcome
func RecordOptimizerTrial(strategy, outcome string) {
	OptimizerTrialsTotal.WithLabelValues(strategy, outcome).Inc()
}
