package sendinvoice

import (
	"notification-workers/internal/orchestrator"
	"notification-workers/internal/workers/notification/jobs"
)

type Input struct {
	jobs.CallerVars
	InvoiceID string `json:"invoiceId"`
	orchestrator.InvoiceEmailOptions
}
