// Package jobs runs notification job handlers: it validates the job
// variables, applies the activity timeout, and resolves the job with the
// response envelope or the BPMN error of the failure.
package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/common/metrics"
	"notification-workers/internal/common/response"
	"notification-workers/internal/common/validation"
)

// DefaultTimeout applies when neither the worker config nor the activity
// declares one.
const DefaultTimeout = 30 * time.Second

// Result is the successful outcome of an operation.
type Result struct {
	Message string
	Data    interface{}
}

// Operation executes one job from its raw JSON variables.
type Operation func(ctx context.Context, vars []byte) (*Result, error)

// Recorder receives one observation per finished job.
type Recorder interface {
	RecordJob(ctx context.Context, taskType, status string, duration time.Duration)
}

// ErrorResolver settles a failed job with the engine.
type ErrorResolver interface {
	HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error)
}

type Options struct {
	TaskType  string
	Timeout   time.Duration
	Validator *validation.Validator
	Errors    ErrorResolver
	Recorder  Recorder
	Logger    logger.Logger
}

type Runner struct {
	taskType  string
	timeout   time.Duration
	validator *validation.Validator
	errors    ErrorResolver
	recorder  Recorder
	logger    logger.Logger
}

func NewRunner(opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if opts.Errors == nil {
		opts.Errors = errors.NewErrorHandler(opts.Logger)
	}
	return &Runner{
		taskType:  opts.TaskType,
		timeout:   opts.Timeout,
		validator: opts.Validator,
		errors:    opts.Errors,
		recorder:  opts.Recorder,
		logger:    opts.Logger.WithFields(map[string]interface{}{"taskType": opts.TaskType}),
	}
}

func (r *Runner) TaskType() string {
	return r.taskType
}

func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run executes op for job and resolves the job with the engine.
func (r *Runner) Run(client worker.JobClient, job entities.Job, op Operation) {
	start := time.Now()
	active := metrics.WorkerJobsActive.WithLabelValues(r.taskType)
	active.Inc()
	defer active.Dec()

	log := r.logger.WithFields(map[string]interface{}{
		"jobKey":             job.Key,
		"processInstanceKey": job.ProcessInstanceKey,
	})
	log.Info("processing job", nil)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	vars, err := r.Execute(ctx, job, op)
	duration := time.Since(start)
	metrics.WorkerJobDuration.WithLabelValues(r.taskType).Observe(duration.Seconds())

	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(r.taskType, string(errors.KindOf(err))).Inc()
		r.record(ctx, "failed", duration)
		r.errors.HandleJobError(ctx, client, job, err)
		return
	}

	if err := r.complete(ctx, client, job, vars); err != nil {
		log.WithError(err).Error("failed to complete job", nil)
		r.record(ctx, "failed", duration)
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()
	r.record(ctx, "completed", duration)
	log.Info("job completed", map[string]interface{}{"durationMs": duration.Milliseconds()})
}

// Execute validates the variables of job and runs op, returning the output
// variables the job completes with.
func (r *Runner) Execute(ctx context.Context, job entities.Job, op Operation) (map[string]interface{}, error) {
	raw := strings.TrimSpace(job.GetVariables())
	if raw == "" {
		raw = "{}"
	}

	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, errors.NewValidationError(validation.InvalidInputMessage, errors.FieldError{
			Field:   "(root)",
			Message: "les variables du job ne sont pas un objet JSON",
		})
	}
	if r.validator != nil {
		if err := r.validator.ValidateJob(r.taskType, vars); err != nil {
			return nil, err
		}
	}

	res, err := op(ctx, []byte(raw))
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	return response.Success(res.Message, res.Data).ToVariables(), nil
}

func (r *Runner) complete(ctx context.Context, client worker.JobClient, job entities.Job, vars map[string]interface{}) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromMap(vars)
	if err != nil {
		return err
	}
	_, err = cmd.Send(ctx)
	return err
}

func (r *Runner) record(ctx context.Context, status string, d time.Duration) {
	if r.recorder != nil {
		r.recorder.RecordJob(ctx, r.taskType, status, d)
	}
}
