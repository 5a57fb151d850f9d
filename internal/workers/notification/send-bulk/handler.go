package sendbulk

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"notification-workers/internal/common/logger"
	"notification-workers/internal/models"
	"notification-workers/internal/orchestrator"
	"notification-workers/internal/workers/notification/jobs"
)

const TaskType = "notification-send-bulk"

type Service interface {
	SendBulk(ctx context.Context, caller models.Caller, reqs []orchestrator.EmailRequest) (*models.BulkOutcome, error)
}

type Handler struct {
	service Service
	runner  *jobs.Runner
	logger  logger.Logger
}

func NewHandler(service Service, runner *jobs.Runner, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		runner:  runner,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, h.execute)
}

// execute completes with the aggregate even when every item failed; item
// failures never fail the job.
func (h *Handler) execute(ctx context.Context, raw []byte) (*jobs.Result, error) {
	var input Input
	if err := jobs.Decode(raw, &input); err != nil {
		return nil, err
	}
	reqs, err := input.Requests()
	if err != nil {
		return nil, err
	}

	out, err := h.service.SendBulk(ctx, input.Caller(), reqs)
	if err != nil {
		return nil, err
	}
	if out.Failed > 0 {
		h.logger.Warn("bulk email run had failures", map[string]interface{}{
			"failed": out.Failed,
			"total":  out.Total,
		})
	}
	return &jobs.Result{Message: orchestrator.BulkMessage(*out), Data: out}, nil
}
