package sendbulk

import (
	"fmt"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/validation"
	"notification-workers/internal/orchestrator"
	sendemail "notification-workers/internal/workers/notification/send-email"
	"notification-workers/internal/workers/notification/jobs"
)

type Input struct {
	jobs.CallerVars
	Emails []sendemail.EmailInput `json:"emails"`
}

// Requests decodes every item, reporting all attachment errors at once.
func (in Input) Requests() ([]orchestrator.EmailRequest, error) {
	reqs := make([]orchestrator.EmailRequest, 0, len(in.Emails))
	var fields []errors.FieldError
	for i, e := range in.Emails {
		req, err := e.Request(fmt.Sprintf("emails[%d].attachments", i))
		if se, ok := errors.AsStandard(err); ok {
			fields = append(fields, se.Fields...)
			continue
		}
		reqs = append(reqs, req)
	}
	if len(fields) > 0 {
		return nil, errors.NewValidationError(validation.InvalidInputMessage, fields...)
	}
	return reqs, nil
}

