package gethistory

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"notification-workers/internal/common/logger"
	"notification-workers/internal/models"
	"notification-workers/internal/orchestrator"
	"notification-workers/internal/workers/notification/jobs"
)

const TaskType = "notification-history"

type Service interface {
	GetHistory(ctx context.Context, f models.HistoryFilter) (*models.HistoryPage, error)
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

	page, err := h.service.GetHistory(ctx, input.Filter())
	if err != nil {
		return nil, err
	}
	return &jobs.Result{Message: orchestrator.MsgHistoryRetrieved, Data: page}, nil
}
