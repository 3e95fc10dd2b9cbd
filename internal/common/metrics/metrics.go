// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of document-written jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of document-written jobs failed by worker",
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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	GuardRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_guard_rejections_total",
			Help: "Events dropped by the transition guard, by reason",
		},
		[]string{"collection", "reason"},
	)

	EventsNotified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_events_notified_total",
			Help: "Lifecycle events that produced a delivery batch",
		},
		[]string{"event_type"},
	)

	DeliveriesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_units_dispatched_total",
			Help: "Delivery units handed to the queue or delivered inline",
		},
		[]string{"channel", "outcome"},
	)

	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_provider_attempts_total",
			Help: "Provider calls made by the deliverer",
		},
		[]string{"channel", "provider", "outcome"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "delivery_provider_duration_seconds",
			Help: "Latency of provider calls",
		},
		[]string{"channel", "provider"},
	)

	DeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_dead_letters_total",
			Help: "Delivery units moved to the dead-letter list",
		},
		[]string{"channel"},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Scheduled sweep executions",
		},
		[]string{"sweep", "status"},
	)

	SweepNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_notifications_total",
			Help: "Notifications dispatched by scheduled sweeps",
		},
		[]string{"sweep"},
	)
)
