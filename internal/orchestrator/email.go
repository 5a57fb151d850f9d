package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/validation"
	"notification-workers/internal/delivery"
	"notification-workers/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

const (
	MsgValidation         = "Erreur de validation"
	MsgEmailSent          = "Email envoyé avec succès"
	MsgRecipientRequired  = "Au moins un destinataire est requis"
	MsgSubjectRequired    = "Le sujet est requis"
	MsgContentRequired    = "Le contenu HTML ou texte est requis"
	MsgInvalidAddress     = "Adresse email invalide"
	MsgInvalidPriority    = "La priorité doit être comprise entre 1 et 10"
	MsgInvalidType        = "Type de notification invalide"
	MsgSingleDocumentLink = "Une notification ne peut concerner qu'une facture ou un devis"
	MsgEmailsRequired     = "Une liste d'emails est requise"
	MsgBulkRecipient      = "Destinataire requis"
	MsgBulkSubject        = "Sujet requis"
)

// EmailRequest is a free-form email dispatch.
type EmailRequest struct {
	To          []delivery.Address      `json:"to"`
	Cc          []delivery.Address      `json:"cc,omitempty"`
	Bcc         []delivery.Address      `json:"bcc,omitempty"`
	Sender      *delivery.Address       `json:"sender,omitempty"`
	ReplyTo     string                  `json:"replyTo,omitempty"`
	Subject     string                  `json:"subject"`
	HTML        string                  `json:"htmlContent,omitempty"`
	Text        string                  `json:"textContent,omitempty"`
	Attachments []delivery.Attachment   `json:"-"`
	TemplateID  string                  `json:"templateId,omitempty"`
	Variables   map[string]interface{}  `json:"templateVariables,omitempty"`
	Priority    int                     `json:"priority,omitempty"`
	ScheduledAt *time.Time              `json:"scheduledAt,omitempty"`
	Metadata    map[string]interface{}  `json:"metadata,omitempty"`
	Type        models.NotificationType `json:"type,omitempty"`
	CustomerID  *string                 `json:"customerId,omitempty"`
	InvoiceID   *string                 `json:"invoiceId,omitempty"`
	QuoteID     *string                 `json:"quoteId,omitempty"`
}

func (r EmailRequest) notificationType() models.NotificationType {
	if r.Type == "" {
		return models.TypeCustom
	}
	return r.Type
}

// ValidateEmailRequest returns every rejected field of r. prefix scopes the
// field names (emails[2].) for bulk requests, which also use the shorter
// bulk messages for recipient and subject.
func ValidateEmailRequest(r EmailRequest, prefix string) []errors.FieldError {
	var fields []errors.FieldError
	add := func(field, msg string) {
		fields = append(fields, errors.FieldError{Field: prefix + field, Message: msg})
	}

	recipientMsg, subjectMsg := MsgRecipientRequired, MsgSubjectRequired
	if prefix != "" {
		recipientMsg, subjectMsg = MsgBulkRecipient, MsgBulkSubject
	}

	if len(r.To) == 0 {
		add("to", recipientMsg)
	}
	checkAddresses := func(name string, addrs []delivery.Address) {
		for i, a := range addrs {
			if !isAddress(a.Email) {
				add(fmt.Sprintf("%s[%d].email", name, i), MsgInvalidAddress)
			}
		}
	}
	checkAddresses("to", r.To)
	checkAddresses("cc", r.Cc)
	checkAddresses("bcc", r.Bcc)
	if r.Sender != nil && !r.Sender.IsZero() && !isAddress(r.Sender.Email) {
		add("sender.email", MsgInvalidAddress)
	}
	if r.ReplyTo != "" && !isAddress(r.ReplyTo) {
		add("replyTo", MsgInvalidAddress)
	}

	if validation.IsBlank(r.Subject) {
		add("subject", subjectMsg)
	}
	if validation.IsBlank(r.HTML) && validation.IsBlank(r.Text) && r.TemplateID == "" {
		add("content", MsgContentRequired)
	}
	if r.Priority != 0 && (r.Priority < 1 || r.Priority > 10) {
		add("priority", MsgInvalidPriority)
	}
	if r.Type != "" && !r.Type.Valid() {
		add("type", MsgInvalidType)
	}
	if r.InvoiceID != nil && r.QuoteID != nil {
		add("quoteId", MsgSingleDocumentLink)
	}
	return fields
}

// isAddress rejects line breaks as well, since addresses end up in raw
// message headers.
func isAddress(s string) bool {
	return !strings.ContainsAny(s, "\r\n") && validation.IsEmail(s)
}

// SendEmail validates and dispatches one email. The record is persisted
// pending before the provider is called and marked sent on acceptance; a
// provider failure leaves it pending and returns DELIVERY_FAILED.
func (o *Orchestrator) SendEmail(ctx context.Context, caller models.Caller, req EmailRequest) (res *models.DispatchResult, err error) {
	ctx, span := o.startSpan(ctx, "SendEmail", caller,
		attribute.Int("recipients", len(req.To)),
		attribute.String("notification.type", string(req.notificationType())),
	)
	defer func() { endSpan(span, err) }()

	if fields := ValidateEmailRequest(req, ""); len(fields) > 0 {
		countDispatch(req.notificationType(), "rejected")
		return nil, errors.NewValidationError(MsgValidation, fields...)
	}
	return o.dispatchEmail(ctx, caller, req)
}

func (o *Orchestrator) dispatchEmail(ctx context.Context, caller models.Caller, req EmailRequest) (*models.DispatchResult, error) {
	from := o.sender.DefaultSender()
	if req.Sender != nil && !req.Sender.IsZero() {
		from = *req.Sender
	}

	n := &models.Notification{
		UserID:         caller.UserID,
		CompanyID:      caller.CompanyID,
		CustomerID:     req.CustomerID,
		InvoiceID:      req.InvoiceID,
		QuoteID:        req.QuoteID,
		RecipientEmail: strings.TrimSpace(req.To[0].Email),
		RecipientName:  optional(req.To[0].Name),
		SenderEmail:    from.Email,
		SenderName:     from.Name,
		Subject:        req.Subject,
		HTMLContent:    req.HTML,
		TextContent:    optional(req.Text),
		Type:           req.notificationType(),
		Variables:      marshalOptional(req.Variables),
		Metadata:       marshalOptional(req.Metadata),
		ScheduledAt:    req.ScheduledAt,
		Priority:       req.Priority,
	}
	if err := o.notifications.Create(ctx, n); err != nil {
		return nil, err
	}

	log := o.logger.WithFields(map[string]interface{}{
		"notificationId": n.ID,
		"type":           string(n.Type),
		"recipient":      n.RecipientEmail,
	})

	externalID, err := o.sender.Send(ctx, delivery.Request{
		Envelope: delivery.Envelope{
			From:    from,
			To:      req.To,
			Cc:      req.Cc,
			Bcc:     req.Bcc,
			ReplyTo: req.ReplyTo,
			Subject: req.Subject,
		},
		HTML:        req.HTML,
		Text:        req.Text,
		TemplateID:  req.TemplateID,
		Variables:   req.Variables,
		Attachments: req.Attachments,
	})
	if err != nil {
		countDispatch(n.Type, "failed")
		log.Error("email dispatch failed, record left pending", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	sentAt := o.markSent(ctx, n, externalID)
	countDispatch(n.Type, "sent")
	log.Info(MsgEmailSent, map[string]interface{}{"externalId": externalID})

	return &models.DispatchResult{
		NotificationID: n.ID,
		Status:         models.StatusSent,
		Message:        MsgEmailSent,
		SentAt:         &sentAt,
		ExternalID:     externalID,
	}, nil
}

// markSent records the provider acceptance, retrying the update with a
// doubling pause. The message is already out, so a final storage failure is
// logged rather than surfaced.
func (o *Orchestrator) markSent(ctx context.Context, n *models.Notification, externalID string) time.Time {
	sentAt := o.now()
	delay := o.markSentDelay
	for attempt := 1; ; attempt++ {
		err := o.notifications.MarkSent(ctx, n.ID, externalID, sentAt)
		if err == nil {
			return sentAt
		}
		fields := map[string]interface{}{
			"notificationId": n.ID,
			"externalId":     externalID,
			"attempt":        attempt,
			"error":          err.Error(),
		}
		if attempt >= o.markSentAttempts || !sleep(ctx, delay) {
			o.logger.Error("failed to mark notification sent", fields)
			return sentAt
		}
		o.logger.Warn("mark sent failed, retrying", fields)
		delay = min(delay*2, maxMarkSentDelay)
	}
}

// sleep waits d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// SendBulk validates every item up front, then dispatches each one as an
// independent SendEmail through the bounded pool.
func (o *Orchestrator) SendBulk(ctx context.Context, caller models.Caller, reqs []EmailRequest) (out *models.BulkOutcome, err error) {
	ctx, span := o.startSpan(ctx, "SendBulk", caller, attribute.Int("items", len(reqs)))
	defer func() { endSpan(span, err) }()

	if len(reqs) == 0 {
		return nil, errors.NewValidationError(MsgValidation,
			errors.FieldError{Field: "emails", Message: MsgEmailsRequired})
	}
	var fields []errors.FieldError
	for i, r := range reqs {
		fields = append(fields, ValidateEmailRequest(r, fmt.Sprintf("emails[%d].", i))...)
	}
	if len(fields) > 0 {
		return nil, errors.NewValidationError(MsgValidation, fields...)
	}

	outcome := o.fanOut(ctx, len(reqs), func(ctx context.Context, i int) error {
		_, err := o.dispatchEmail(ctx, caller, reqs[i])
		return err
	})
	span.SetAttributes(attribute.Int("succeeded", outcome.Succeeded), attribute.Int("failed", outcome.Failed))
	o.logger.Info("bulk email dispatch finished", map[string]interface{}{
		"total":     outcome.Total,
		"succeeded": outcome.Succeeded,
		"failed":    outcome.Failed,
	})
	return &outcome, nil
}

// BulkMessage is the caller-facing summary of a bulk run.
func BulkMessage(out models.BulkOutcome) string {
	return fmt.Sprintf("Envoi terminé: %d réussis, %d échoués", out.Succeeded, out.Failed)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func marshalOptional(m map[string]interface{}) json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}
