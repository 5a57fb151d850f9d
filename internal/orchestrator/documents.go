package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/delivery"
	"notification-workers/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

const (
	MsgInvoiceSent        = "Facture envoyée par email avec succès"
	MsgQuoteSent          = "Devis envoyé par email avec succès"
	MsgCustomerNoEmail    = "Le client n'a pas d'adresse email"
	MsgDocumentsRequired  = "Une liste de documents est requise"
	MsgDocumentIDRequired = "Identifiant du document requis"
	MsgInvalidKind        = "Type de document invalide"

	pdfContentType = "application/pdf"
)

// InvoiceEmailOptions tunes an invoice dispatch.
type InvoiceEmailOptions struct {
	IncludePaymentLink bool       `json:"includePaymentLink,omitempty"`
	CustomMessage      string     `json:"customMessage,omitempty"`
	ScheduledAt        *time.Time `json:"scheduledAt,omitempty"`
}

// QuoteEmailOptions tunes a quote dispatch.
type QuoteEmailOptions struct {
	CustomMessage string     `json:"customMessage,omitempty"`
	ScheduledAt   *time.Time `json:"scheduledAt,omitempty"`
}

// DocumentDispatch is one item of a bulk document run.
type DocumentDispatch struct {
	Kind               models.DocumentKind `json:"kind"`
	DocumentID         string              `json:"documentId"`
	IncludePaymentLink bool                `json:"includePaymentLink,omitempty"`
	CustomMessage      string              `json:"customMessage,omitempty"`
	ScheduledAt        *time.Time          `json:"scheduledAt,omitempty"`
}

// dispatchPlan captures what differs between invoices and quotes.
type dispatchPlan struct {
	operation   string
	kind        models.DocumentKind
	typ         models.NotificationType
	message     string
	statusFrom  string
	statusTo    string
	metadata    map[string]interface{}
	scheduledAt *time.Time
	custom      string
}

// SendInvoiceEmail renders the invoice and emails it to its customer from
// the calling user. On success a pending invoice moves to sent.
func (o *Orchestrator) SendInvoiceEmail(ctx context.Context, caller models.Caller, invoiceID string, opts InvoiceEmailOptions) (*models.DispatchResult, error) {
	return o.sendDocument(ctx, caller, invoiceID, dispatchPlan{
		operation:  "SendInvoiceEmail",
		kind:       models.KindInvoice,
		typ:        models.TypeInvoiceSent,
		message:    MsgInvoiceSent,
		statusFrom: models.InvoiceStatusPending,
		statusTo:   models.InvoiceStatusSent,
		metadata: map[string]interface{}{
			"includePaymentLink": opts.IncludePaymentLink,
			"customMessage":      opts.CustomMessage,
		},
		scheduledAt: opts.ScheduledAt,
		custom:      opts.CustomMessage,
	})
}

// SendQuoteEmail renders the quote and emails it to its customer from the
// calling user. On success a draft quote moves to sent.
func (o *Orchestrator) SendQuoteEmail(ctx context.Context, caller models.Caller, quoteID string, opts QuoteEmailOptions) (*models.DispatchResult, error) {
	return o.sendDocument(ctx, caller, quoteID, dispatchPlan{
		operation:  "SendQuoteEmail",
		kind:       models.KindQuote,
		typ:        models.TypeQuoteSent,
		message:    MsgQuoteSent,
		statusFrom: models.QuoteStatusDraft,
		statusTo:   models.QuoteStatusSent,
		metadata: map[string]interface{}{
			"customMessage": opts.CustomMessage,
		},
		scheduledAt: opts.ScheduledAt,
		custom:      opts.CustomMessage,
	})
}

func (o *Orchestrator) sendDocument(ctx context.Context, caller models.Caller, id string, plan dispatchPlan) (res *models.DispatchResult, err error) {
	ctx, span := o.startSpan(ctx, plan.operation, caller,
		attribute.String("document.kind", string(plan.kind)),
		attribute.String("document.id", id),
	)
	defer func() { endSpan(span, err) }()

	log := o.logger.WithFields(map[string]interface{}{
		"kind":       string(plan.kind),
		"documentId": id,
		"userId":     caller.UserID,
		"companyId":  caller.CompanyID,
	})

	doc, err := o.documents.FindDocument(ctx, plan.kind, id, caller.CompanyID)
	if err != nil {
		return nil, err
	}
	if !doc.Customer.HasEmail() {
		countDispatch(plan.typ, "rejected")
		return nil, errors.NewInvalidStateError(MsgCustomerNoEmail,
			fmt.Sprintf("%s %s, customer %s", plan.kind, id, doc.Customer.ID))
	}
	user, err := o.users.GetUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	html, err := composeDocumentEmail(doc, user, plan.custom)
	if err != nil {
		return nil, errors.NewRenderError("email body", err)
	}

	recipient := delivery.Address{
		Email: strings.TrimSpace(*doc.Customer.Email),
		Name:  doc.Customer.DisplayName(),
	}
	from := delivery.Address{Email: o.fallbackSender, Name: user.FullName()}
	if user.Email != nil && strings.TrimSpace(*user.Email) != "" {
		from.Email = strings.TrimSpace(*user.Email)
	}
	subject := documentSubject(doc)

	n := &models.Notification{
		UserID:         caller.UserID,
		CompanyID:      caller.CompanyID,
		CustomerID:     optional(doc.Customer.ID),
		RecipientEmail: recipient.Email,
		RecipientName:  optional(recipient.Name),
		SenderEmail:    from.Email,
		SenderName:     from.Name,
		Subject:        subject,
		HTMLContent:    html,
		Type:           plan.typ,
		Metadata:       marshalMetadata(plan.metadata),
		ScheduledAt:    plan.scheduledAt,
	}
	if plan.kind == models.KindInvoice {
		n.InvoiceID = &doc.ID
	} else {
		n.QuoteID = &doc.ID
	}
	if err := o.notifications.Create(ctx, n); err != nil {
		return nil, err
	}
	log = log.WithFields(map[string]interface{}{"notificationId": n.ID})

	rendered, err := o.renderer.RenderDocument(ctx, doc)
	if err != nil {
		countDispatch(plan.typ, "failed")
		if markErr := o.notifications.MarkFailed(ctx, n.ID); markErr != nil {
			log.Error("failed to mark notification failed", map[string]interface{}{"error": markErr.Error()})
		}
		log.Error("document rendering failed", map[string]interface{}{"error": err.Error()})
		if _, ok := errors.AsStandard(err); !ok {
			err = errors.NewRenderError("pdf", err)
		}
		return nil, err
	}

	externalID, err := o.sender.SendWithAttachments(ctx, delivery.AttachmentEmail{
		PlainEmail: delivery.PlainEmail{
			Envelope: delivery.Envelope{
				From:    from,
				To:      []delivery.Address{recipient},
				Subject: subject,
			},
			HTML: html,
		},
		Attachments: []delivery.Attachment{{
			Filename:    rendered.Filename,
			Content:     rendered.Content,
			ContentType: pdfContentType,
		}},
	})
	if err != nil {
		countDispatch(plan.typ, "failed")
		log.Error("document email dispatch failed, record left pending", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	sentAt := o.markSent(ctx, n, externalID)
	countDispatch(plan.typ, "sent")
	o.advanceDocument(ctx, doc, plan, log)

	log.Info(plan.message, map[string]interface{}{
		"externalId": externalID,
		"recipient":  recipient.Email,
		"filename":   rendered.Filename,
	})
	return &models.DispatchResult{
		NotificationID: n.ID,
		Status:         models.StatusSent,
		Message:        plan.message,
		SentAt:         &sentAt,
		ExternalID:     externalID,
	}, nil
}

// advanceDocument applies the guarded status change. It never undoes a send.
func (o *Orchestrator) advanceDocument(ctx context.Context, doc *models.Document, plan dispatchPlan, log logger.Logger) {
	if doc.Status != plan.statusFrom {
		return
	}
	changed, err := o.documents.AdvanceStatus(ctx, plan.kind, doc.ID, plan.statusFrom, plan.statusTo)
	if err != nil {
		log.Warn("document status not updated after send", map[string]interface{}{"error": err.Error()})
		return
	}
	if !changed {
		log.Debug("document status changed concurrently, left as is", nil)
	}
}

// SendBulkDocuments runs each item as a full invoice or quote dispatch
// through the bounded pool and reports counts only.
func (o *Orchestrator) SendBulkDocuments(ctx context.Context, caller models.Caller, items []DocumentDispatch) (out *models.BulkOutcome, err error) {
	ctx, span := o.startSpan(ctx, "SendBulkDocuments", caller, attribute.Int("items", len(items)))
	defer func() { endSpan(span, err) }()

	if len(items) == 0 {
		return nil, errors.NewValidationError(MsgValidation,
			errors.FieldError{Field: "documents", Message: MsgDocumentsRequired})
	}
	var fields []errors.FieldError
	for i, it := range items {
		if !it.Kind.Valid() {
			fields = append(fields, errors.FieldError{Field: fmt.Sprintf("documents[%d].kind", i), Message: MsgInvalidKind})
		}
		if strings.TrimSpace(it.DocumentID) == "" {
			fields = append(fields, errors.FieldError{Field: fmt.Sprintf("documents[%d].documentId", i), Message: MsgDocumentIDRequired})
		}
	}
	if len(fields) > 0 {
		return nil, errors.NewValidationError(MsgValidation, fields...)
	}

	outcome := o.fanOut(ctx, len(items), func(ctx context.Context, i int) error {
		it := items[i]
		var err error
		switch it.Kind {
		case models.KindInvoice:
			_, err = o.SendInvoiceEmail(ctx, caller, it.DocumentID, InvoiceEmailOptions{
				IncludePaymentLink: it.IncludePaymentLink,
				CustomMessage:      it.CustomMessage,
				ScheduledAt:        it.ScheduledAt,
			})
		case models.KindQuote:
			_, err = o.SendQuoteEmail(ctx, caller, it.DocumentID, QuoteEmailOptions{
				CustomMessage: it.CustomMessage,
				ScheduledAt:   it.ScheduledAt,
			})
		default:
			err = errors.NewValidationError(MsgInvalidKind)
		}
		if err != nil {
			o.logger.Warn("bulk document item failed", map[string]interface{}{
				"kind":       string(it.Kind),
				"documentId": it.DocumentID,
				"errorCode":  string(errors.KindOf(err)),
			})
		}
		return err
	})
	span.SetAttributes(attribute.Int("succeeded", outcome.Succeeded), attribute.Int("failed", outcome.Failed))
	return &outcome, nil
}

func marshalMetadata(m map[string]interface{}) json.RawMessage {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}
