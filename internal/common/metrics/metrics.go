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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notifications handed to the email provider, by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	ProviderSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_provider_sends_total",
			Help: "Provider send calls by provider, shape and outcome",
		},
		[]string{"provider", "shape", "outcome"},
	)

	DocumentRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "document_render_duration_seconds",
			Help:    "Time spent producing an invoice or quote PDF",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	DeliveryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_events_total",
			Help: "Provider delivery events by event and tracker outcome",
		},
		[]string{"event", "outcome"},
	)
)
