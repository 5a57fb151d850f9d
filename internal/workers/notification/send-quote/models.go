package sendquote

import (
	"notification-workers/internal/orchestrator"
	"notification-workers/internal/workers/notification/jobs"
)

type Input struct {
	jobs.CallerVars
	QuoteID string `json:"quoteId"`
	orchestrator.QuoteEmailOptions
}
