package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "p4review",
		Subsystem: "queue",
		Name:      "tasks_enqueued_total",
		Help:      "Tasks added to the queue, by type.",
	}, []string{"type"})

	tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "p4review",
		Subsystem: "queue",
		Name:      "tasks_processed_total",
		Help:      "Tasks processed by the worker, by type and outcome.",
	}, []string{"type", "outcome"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "p4review",
		Subsystem: "queue",
		Name:      "task_duration_seconds",
		Help:      "Time spent running a task's listeners.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})
)
