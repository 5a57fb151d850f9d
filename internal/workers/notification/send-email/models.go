package sendemail

import (
	"notification-workers/internal/orchestrator"
	"notification-workers/internal/workers/notification/jobs"
)

type Input struct {
	jobs.CallerVars
	Email EmailInput `json:"email"`
}

// EmailInput is the request with attachments still base64 encoded.
type EmailInput struct {
	orchestrator.EmailRequest
	Attachments []jobs.AttachmentVars `json:"attachments,omitempty"`
}

// Request decodes the attachments and returns the dispatch request.
// field scopes attachment errors, e.g. "email.attachments".
func (e EmailInput) Request(field string) (orchestrator.EmailRequest, error) {
	req := e.EmailRequest
	atts, err := jobs.DecodeAttachments(field, e.Attachments)
	if err != nil {
		return req, err
	}
	req.Attachments = atts
	return req, nil
}
