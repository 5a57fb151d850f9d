// Package notification assembles the notification job workers.
package notification

import (
	"time"

	"notification-workers/internal/common/camunda"
	"notification-workers/internal/common/config"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/common/validation"
	"notification-workers/internal/orchestrator"
	"notification-workers/internal/workers/notification/jobs"
	"notification-workers/pkg/registry"

	gethistory "notification-workers/internal/workers/notification/get-history"
	getnotification "notification-workers/internal/workers/notification/get-notification"
	getstats "notification-workers/internal/workers/notification/get-stats"
	sendbulk "notification-workers/internal/workers/notification/send-bulk"
	sendbulkdocuments "notification-workers/internal/workers/notification/send-bulk-documents"
	sendemail "notification-workers/internal/workers/notification/send-email"
	sendinvoice "notification-workers/internal/workers/notification/send-invoice"
	sendquote "notification-workers/internal/workers/notification/send-quote"
)

// Service is the orchestrator surface driven by the job workers.
type Service interface {
	sendemail.Service
	sendbulk.Service
	sendinvoice.Service
	sendquote.Service
	sendbulkdocuments.Service
	getstats.Service
	gethistory.Service
	getnotification.Service
}

var _ Service = (*orchestrator.Orchestrator)(nil)

type Dependencies struct {
	Service   Service
	Registry  *registry.ActivityRegistry
	Validator *validation.Validator
	Errors    jobs.ErrorResolver
	Recorder  jobs.Recorder
	Config    *config.Config
	Logger    logger.Logger
}

// Registration is one job type ready to be opened on the zeebe client.
type Registration struct {
	TaskType string
	Config   config.WorkerConfig
	Handler  camunda.JobHandler
}

// Registrations builds a handler for every notification job type, including
// disabled ones; the caller decides what to open.
func Registrations(d Dependencies) []Registration {
	runner := func(taskType string) *jobs.Runner {
		return jobs.NewRunner(jobs.Options{
			TaskType:  taskType,
			Timeout:   operationTimeout(d, taskType),
			Validator: d.Validator,
			Errors:    d.Errors,
			Recorder:  d.Recorder,
			Logger:    d.Logger,
		})
	}
	reg := func(taskType string, h camunda.JobHandler) Registration {
		return Registration{
			TaskType: taskType,
			Config:   config.GetWorkerConfig(d.Config, taskType),
			Handler:  h,
		}
	}

	return []Registration{
		reg(sendemail.TaskType, sendemail.NewHandler(d.Service, runner(sendemail.TaskType), d.Logger)),
		reg(sendbulk.TaskType, sendbulk.NewHandler(d.Service, runner(sendbulk.TaskType), d.Logger)),
		reg(sendinvoice.TaskType, sendinvoice.NewHandler(d.Service, runner(sendinvoice.TaskType), d.Logger)),
		reg(sendquote.TaskType, sendquote.NewHandler(d.Service, runner(sendquote.TaskType), d.Logger)),
		reg(sendbulkdocuments.TaskType, sendbulkdocuments.NewHandler(d.Service, runner(sendbulkdocuments.TaskType), d.Logger)),
		reg(getstats.TaskType, getstats.NewHandler(d.Service, runner(getstats.TaskType), d.Logger)),
		reg(gethistory.TaskType, gethistory.NewHandler(d.Service, runner(gethistory.TaskType), d.Logger)),
		reg(getnotification.TaskType, getnotification.NewHandler(d.Service, runner(getnotification.TaskType), d.Logger)),
	}
}

// operationTimeout is the activity timeout of the registry. The worker
// timeout is the engine's job lock and only applies when the activity
// declares none.
func operationTimeout(d Dependencies, taskType string) time.Duration {
	fallback := config.GetDuration(config.GetWorkerConfig(d.Config, taskType).Timeout)
	if d.Registry == nil {
		return fallback
	}
	a, ok := d.Registry.Find(taskType)
	if !ok {
		return fallback
	}
	return a.TimeoutDuration(fallback)
}
