package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "reelboard"

var (
	reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "gantt",
		Name:      "reconciliations_total",
		Help:      "Stage reconciliations run, by trigger.",
	}, []string{"trigger"})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "gantt",
		Name:      "reconcile_duration_seconds",
		Help:      "Time spent regenerating one project's stages.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	taskMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "gantt",
		Name:      "task_mutations_total",
		Help:      "Task writes, by operation.",
	}, []string{"op"})

	statusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "projects",
		Name:      "status_changes_total",
		Help:      "Recorded project status transitions, by new status.",
	}, []string{"status"})

	boardTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "gantt",
		Name:      "tasks",
		Help:      "Tasks held by the gantt board after the last write.",
	})
)
