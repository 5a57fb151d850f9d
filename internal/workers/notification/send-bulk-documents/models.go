package sendbulkdocuments

import (
	"notification-workers/internal/orchestrator"
	"notification-workers/internal/workers/notification/jobs"
)

type Input struct {
	jobs.CallerVars
	Documents []orchestrator.DocumentDispatch `json:"documents"`
}
