package jobs

import (
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"strconv"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/validation"
	"notification-workers/internal/delivery"
	"notification-workers/internal/models"
)

// Decode unmarshals the job variables into v. Type mismatches the schema
// let through are reported against the offending field.
func Decode(raw []byte, v interface{}) error {
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) && typeErr.Field != "" {
		return errors.NewValidationError(validation.InvalidInputMessage, errors.FieldError{
			Field:   typeErr.Field,
			Message: "type " + typeErr.Value + " inattendu",
		})
	}
	return errors.NewValidationError(validation.InvalidInputMessage, errors.FieldError{
		Field:   "(root)",
		Message: err.Error(),
	})
}

// CallerVars is the authenticated identity carried by every job.
type CallerVars struct {
	UserID    string `json:"userId"`
	CompanyID string `json:"companyId"`
}

func (c CallerVars) Caller() models.Caller {
	return models.Caller{UserID: c.UserID, CompanyID: c.CompanyID}
}

// AttachmentVars is an attachment with base64 content.
type AttachmentVars struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
}

// DecodeAttachments decodes the base64 content of each attachment. field
// prefixes the reported field name, e.g. "email.attachments".
func DecodeAttachments(field string, in []AttachmentVars) ([]delivery.Attachment, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]delivery.Attachment, 0, len(in))
	var fields []errors.FieldError
	for i, a := range in {
		content, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			fields = append(fields, errors.FieldError{
				Field:   validation.JoinPath(field, strconv.Itoa(i), "content"),
				Message: "contenu base64 invalide",
			})
			continue
		}
		out = append(out, delivery.Attachment{
			Filename:    a.Filename,
			Content:     content,
			ContentType: a.ContentType,
		})
	}
	if len(fields) > 0 {
		return nil, errors.NewValidationError(validation.InvalidInputMessage, fields...)
	}
	return out, nil
}
