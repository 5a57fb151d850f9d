package sendbulkdocuments

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"notification-workers/internal/common/logger"
	"notification-workers/internal/models"
	"notification-workers/internal/orchestrator"
	"notification-workers/internal/workers/notification/jobs"
)

const TaskType = "notification-send-bulk-documents"

type Service interface {
	SendBulkDocuments(ctx context.Context, caller models.Caller, items []orchestrator.DocumentDispatch) (*models.BulkOutcome, error)
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

func (h *Handler) execute(ctx context.Context, raw []byte) (*jobs.Result, error) {
	var input Input
	if err := jobs.Decode(raw, &input); err != nil {
		return nil, err
	}

	out, err := h.service.SendBulkDocuments(ctx, input.Caller(), input.Documents)
	if err != nil {
		return nil, err
	}
	h.logger.Info("bulk document run finished", map[string]interface{}{
		"succeeded": out.Succeeded,
		"failed":    out.Failed,
	})
	return &jobs.Result{Message: orchestrator.BulkMessage(*out), Data: out}, nil
}
