package orchestrator

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/delivery"
	"notification-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var (
	fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	caller   = models.Caller{UserID: "user-1", CompanyID: "company-1"}
)

type harness struct {
	orch          *Orchestrator
	notifications *MockNotifications
	documents     *MockDocuments
	users         *MockUsers
	sender        *MockSender
	reads         *MockReadModel
	renderer      *fakeRenderer
	spans         *tracetest.SpanRecorder
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		notifications: &MockNotifications{},
		documents:     &MockDocuments{},
		users:         &MockUsers{},
		sender:        &MockSender{},
		reads:         &MockReadModel{},
		renderer:      &fakeRenderer{},
		spans:         tracetest.NewSpanRecorder(),
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))
	h.orch = NewOrchestrator(Dependencies{
		Notifications: h.notifications,
		Documents:     h.documents,
		Users:         h.users,
		Renderer:      h.renderer,
		Sender:        h.sender,
		Reads:         h.reads,
	}, Config{MarkSentDelay: time.Millisecond}, logger.NewTestLogger(t), WithTracer(tp.Tracer("test")), WithClock(func() time.Time { return fixedNow }))
	return h
}

// expectCreate assigns id to the created record and captures it.
func (h *harness) expectCreate(id string) *models.Notification {
	created := &models.Notification{}
	h.notifications.On("Create", mock.Anything, mock.AnythingOfType("*models.Notification")).
		Run(func(args mock.Arguments) {
			n := args.Get(1).(*models.Notification)
			n.ID = id
			n.Status = models.StatusPending
			*created = *n
		}).Return(nil).Once()
	return created
}

func (h *harness) lastSpan(t *testing.T) sdktrace.ReadOnlySpan {
	t.Helper()
	ended := h.spans.Ended()
	require.NotEmpty(t, ended)
	return ended[len(ended)-1]
}

func simpleEmail() EmailRequest {
	return EmailRequest{
		To:      []delivery.Address{{Email: "client@acme.fr", Name: "ACME"}},
		Subject: "Relance",
		HTML:    "<p>Bonjour</p>",
	}
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	se, ok := errors.AsStandard(err)
	require.True(t, ok, "expected StandardError, got %v", err)
	require.Equal(t, errors.ErrCodeValidation, se.Code)
	out := map[string]string{}
	for _, f := range se.Fields {
		out[f.Field] = f.Message
	}
	return out
}

// ==========================
// SendEmail
// ==========================

func TestSendEmail_Success(t *testing.T) {
	h := newHarness(t)
	created := h.expectCreate("n-1")
	h.sender.On("Send", mock.Anything, mock.MatchedBy(func(r delivery.Request) bool {
		return r.From.Email == "notifications@zenbilling.com" &&
			r.Subject == "Relance" && r.HTML == "<p>Bonjour</p>" && len(r.To) == 1
	})).Return("ses-123", nil)
	h.notifications.On("MarkSent", mock.Anything, "n-1", "ses-123", fixedNow).Return(nil)

	res, err := h.orch.SendEmail(context.Background(), caller, simpleEmail())

	require.NoError(t, err)
	assert.Equal(t, "n-1", res.NotificationID)
	assert.Equal(t, models.StatusSent, res.Status)
	assert.Equal(t, MsgEmailSent, res.Message)
	assert.Equal(t, "ses-123", res.ExternalID)
	assert.Equal(t, fixedNow, *res.SentAt)

	assert.Equal(t, models.TypeCustom, created.Type)
	assert.Equal(t, "client@acme.fr", created.RecipientEmail)
	assert.Equal(t, "ACME", *created.RecipientName)
	assert.Equal(t, "ZenBilling Notifications", created.SenderName)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, "company-1", created.CompanyID)

	span := h.lastSpan(t)
	assert.Equal(t, "orchestrator.SendEmail", span.Name())
	assert.NotEqual(t, codes.Error, span.Status().Code)
	h.notifications.AssertExpectations(t)
	h.sender.AssertExpectations(t)
}

func TestSendEmail_PersistsOptionalFields(t *testing.T) {
	h := newHarness(t)
	created := h.expectCreate("n-1")
	h.sender.On("Send", mock.Anything, mock.MatchedBy(func(r delivery.Request) bool {
		return r.From.Email == "billing@studio.fr" && r.Shape() == delivery.ShapeTemplated
	})).Return("ses-9", nil)
	h.notifications.On("MarkSent", mock.Anything, "n-1", "ses-9", fixedNow).Return(nil)

	scheduled := fixedNow.Add(time.Hour)
	req := EmailRequest{
		To:          []delivery.Address{{Email: "client@acme.fr"}},
		Sender:      &delivery.Address{Email: "billing@studio.fr", Name: "Studio"},
		Subject:     "Bienvenue",
		TemplateID:  "welcome-v2",
		Variables:   map[string]interface{}{"firstName": "Léa"},
		Priority:    8,
		ScheduledAt: &scheduled,
		Metadata:    map[string]interface{}{"campaign": "onboarding"},
		Type:        models.TypeWelcome,
	}

	_, err := h.orch.SendEmail(context.Background(), caller, req)

	require.NoError(t, err)
	assert.Equal(t, models.TypeWelcome, created.Type)
	assert.Equal(t, 8, created.Priority)
	assert.Equal(t, &scheduled, created.ScheduledAt)
	assert.Nil(t, created.RecipientName)
	assert.JSONEq(t, `{"firstName":"Léa"}`, string(created.Variables))
	assert.JSONEq(t, `{"campaign":"onboarding"}`, string(created.Metadata))
	assert.Equal(t, "billing@studio.fr", created.SenderEmail)
}

func TestSendEmail_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *EmailRequest)
		field  string
		msg    string
	}{
		{"no recipient", func(r *EmailRequest) { r.To = nil }, "to", MsgRecipientRequired},
		{"malformed recipient", func(r *EmailRequest) { r.To[0].Email = "not-an-email" }, "to[0].email", MsgInvalidAddress},
		{"malformed cc", func(r *EmailRequest) { r.Cc = []delivery.Address{{Email: "x@"}} }, "cc[0].email", MsgInvalidAddress},
		{"malformed reply-to", func(r *EmailRequest) { r.ReplyTo = "not-an-address" }, "replyTo", MsgInvalidAddress},
		{"reply-to with header break", func(r *EmailRequest) { r.ReplyTo = "c@example.com\r\nBcc: someone@example.org" }, "replyTo", MsgInvalidAddress},
		{"recipient with trailing line break", func(r *EmailRequest) { r.To[0].Email += "\r\n" }, "to[0].email", MsgInvalidAddress},
		{"blank subject", func(r *EmailRequest) { r.Subject = "  " }, "subject", MsgSubjectRequired},
		{"no content", func(r *EmailRequest) { r.HTML = "" }, "content", MsgContentRequired},
		{"priority too high", func(r *EmailRequest) { r.Priority = 11 }, "priority", MsgInvalidPriority},
		{"unknown type", func(r *EmailRequest) { r.Type = "newsletter" }, "type", MsgInvalidType},
		{"invoice and quote", func(r *EmailRequest) { r.InvoiceID, r.QuoteID = strPtr("i"), strPtr("q") }, "quoteId", MsgSingleDocumentLink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := simpleEmail()
			tt.mutate(&req)

			_, err := h.orch.SendEmail(context.Background(), caller, req)

			require.Error(t, err)
			assert.Equal(t, tt.msg, fieldErrors(t, err)[tt.field])
			assert.Equal(t, codes.Error, h.lastSpan(t).Status().Code)
			h.notifications.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestSendEmail_TemplateStandsInForBody(t *testing.T) {
	req := simpleEmail()
	req.HTML = ""
	req.TemplateID = "reminder"
	assert.Empty(t, ValidateEmailRequest(req, ""))
}

func TestSendEmail_DeliveryFailureLeavesRecordPending(t *testing.T) {
	h := newHarness(t)
	h.expectCreate("n-1")
	h.sender.On("Send", mock.Anything, mock.Anything).
		Return("", errors.NewDeliveryFailedError("ses", stderrors.New("throttled")))

	_, err := h.orch.SendEmail(context.Background(), caller, simpleEmail())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDeliveryFailed))
	h.notifications.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.notifications.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything)
}

func TestSendEmail_CreateFailureStopsBeforeProvider(t *testing.T) {
	h := newHarness(t)
	h.notifications.On("Create", mock.Anything, mock.Anything).
		Return(errors.NewDatabaseError("create notification", stderrors.New("conn refused")))

	_, err := h.orch.SendEmail(context.Background(), caller, simpleEmail())

	assert.True(t, errors.Is(err, errors.ErrCodeDatabase))
	h.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSendEmail_MarkSentFailureStillReportsSent(t *testing.T) {
	h := newHarness(t)
	h.expectCreate("n-1")
	h.sender.On("Send", mock.Anything, mock.Anything).Return("ses-1", nil)
	h.notifications.On("MarkSent", mock.Anything, "n-1", "ses-1", fixedNow).
		Return(errors.NewDatabaseError("mark sent", stderrors.New("timeout")))

	res, err := h.orch.SendEmail(context.Background(), caller, simpleEmail())

	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, res.Status)
	h.notifications.AssertNumberOfCalls(t, "MarkSent", defaultMarkSentAttempts)
}

func TestSendEmail_MarkSentRetriesTransientFailure(t *testing.T) {
	h := newHarness(t)
	h.expectCreate("n-1")
	h.sender.On("Send", mock.Anything, mock.Anything).Return("ses-1", nil)
	h.notifications.On("MarkSent", mock.Anything, "n-1", "ses-1", fixedNow).
		Return(errors.NewDatabaseError("mark sent", stderrors.New("connection reset"))).Once()
	h.notifications.On("MarkSent", mock.Anything, "n-1", "ses-1", fixedNow).Return(nil).Once()

	res, err := h.orch.SendEmail(context.Background(), caller, simpleEmail())

	require.NoError(t, err)
	assert.Equal(t, "ses-1", res.ExternalID)
	h.notifications.AssertNumberOfCalls(t, "MarkSent", 2)
}

func TestNewOrchestrator_MarkSentDefaults(t *testing.T) {
	o := NewOrchestrator(Dependencies{}, Config{}, logger.NewNoOpLogger())
	assert.Equal(t, defaultMarkSentAttempts, o.markSentAttempts)
	assert.Equal(t, defaultMarkSentDelay, o.markSentDelay)
}

// ==========================
// SendBulk
// ==========================

func TestSendBulk_EmptyList(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.SendBulk(context.Background(), caller, nil)

	assert.Equal(t, MsgEmailsRequired, fieldErrors(t, err)["emails"])
}

func TestSendBulk_ValidatesEveryItemFirst(t *testing.T) {
	h := newHarness(t)
	bad := simpleEmail()
	bad.To = nil
	bad.Subject = ""

	_, err := h.orch.SendBulk(context.Background(), caller, []EmailRequest{simpleEmail(), bad})

	fields := fieldErrors(t, err)
	assert.Equal(t, MsgBulkRecipient, fields["emails[1].to"])
	assert.Equal(t, MsgBulkSubject, fields["emails[1].subject"])
	h.notifications.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendBulk_IndependentOutcomes(t *testing.T) {
	store := newMemoryNotifications()
	sender := &fakeSender{concurrency: 3}
	orch := NewOrchestrator(Dependencies{Notifications: store, Sender: sender}, Config{}, logger.NewNoOpLogger())

	var reqs []EmailRequest
	for i := 0; i < 10; i++ {
		addr := fmt.Sprintf("client%d@acme.fr", i)
		if i%4 == 1 {
			addr = fmt.Sprintf("fail%d@acme.fr", i)
		}
		reqs = append(reqs, EmailRequest{
			To:      []delivery.Address{{Email: addr}},
			Subject: "Hello",
			Text:    "Bonjour",
		})
	}

	out, err := orch.SendBulk(context.Background(), caller, reqs)

	require.NoError(t, err)
	assert.Equal(t, models.BulkOutcome{Succeeded: 7, Failed: 3, Total: 10}, *out)
	assert.LessOrEqual(t, int(sender.peak), 3)

	counts := store.countByStatus()
	assert.Equal(t, 7, counts[models.StatusSent])
	assert.Equal(t, 3, counts[models.StatusPending])
	assert.Equal(t, "Envoi terminé: 7 réussis, 3 échoués", BulkMessage(*out))
}

// ==========================
// SendInvoiceEmail / SendQuoteEmail
// ==========================

func sampleDocument(kind models.DocumentKind, status string) *models.Document {
	number := "F-2024-001"
	if kind == models.KindQuote {
		number = "D-2024-007"
	}
	return &models.Document{
		Kind:      kind,
		ID:        "doc-1",
		Number:    number,
		Status:    status,
		CompanyID: "company-1",
		Customer: models.Customer{
			ID:           "cust-1",
			Type:         models.CustomerBusiness,
			Email:        strPtr("compta@acme.fr"),
			BusinessName: strPtr("ACME SAS"),
		},
	}
}

func sampleUser() *models.User {
	return &models.User{
		ID:          "user-1",
		FirstName:   "Jane",
		LastName:    "Doe",
		Email:       strPtr("jane@studio.fr"),
		CompanyName: strPtr("Studio Doe"),
	}
}

func TestSendInvoiceEmail_Success(t *testing.T) {
	h := newHarness(t)
	doc := sampleDocument(models.KindInvoice, models.InvoiceStatusPending)
	h.documents.On("FindDocument", mock.Anything, models.KindInvoice, "doc-1", "company-1").Return(doc, nil)
	h.users.On("GetUser", mock.Anything, "user-1").Return(sampleUser(), nil)
	created := h.expectCreate("n-1")

	var sent delivery.AttachmentEmail
	h.sender.On("SendWithAttachments", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(delivery.AttachmentEmail) }).
		Return("ses-77", nil)
	h.notifications.On("MarkSent", mock.Anything, "n-1", "ses-77", fixedNow).Return(nil)
	h.documents.On("AdvanceStatus", mock.Anything, models.KindInvoice, "doc-1", "pending", "sent").Return(true, nil)

	res, err := h.orch.SendInvoiceEmail(context.Background(), caller, "doc-1", InvoiceEmailOptions{IncludePaymentLink: true})

	require.NoError(t, err)
	assert.Equal(t, MsgInvoiceSent, res.Message)
	assert.Equal(t, "ses-77", res.ExternalID)

	assert.Equal(t, models.TypeInvoiceSent, created.Type)
	assert.Equal(t, "doc-1", *created.InvoiceID)
	assert.Nil(t, created.QuoteID)
	assert.Equal(t, "cust-1", *created.CustomerID)
	assert.Equal(t, "compta@acme.fr", created.RecipientEmail)
	assert.Equal(t, "Facture F-2024-001", created.Subject)
	assert.JSONEq(t, `{"includePaymentLink":true,"customMessage":""}`, string(created.Metadata))

	assert.Equal(t, delivery.Address{Email: "jane@studio.fr", Name: "Jane Doe"}, sent.From)
	assert.Equal(t, []delivery.Address{{Email: "compta@acme.fr", Name: "ACME SAS"}}, sent.To)
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, "invoice-F-2024-001.pdf", sent.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", sent.Attachments[0].ContentType)
	assert.Contains(t, sent.HTML, "Bonjour ACME SAS,")
	assert.Contains(t, sent.HTML, "votre facture n° F-2024-001")
	assert.Contains(t, sent.HTML, "Studio Doe")
	assert.NotContains(t, sent.HTML, "Message personnalisé")

	assert.Equal(t, "orchestrator.SendInvoiceEmail", h.lastSpan(t).Name())
	h.documents.AssertExpectations(t)
}

func TestSendQuoteEmail_EscapesCustomMessageAndAdvancesDraft(t *testing.T) {
	h := newHarness(t)
	doc := sampleDocument(models.KindQuote, models.QuoteStatusDraft)
	user := sampleUser()
	user.Email = nil
	user.CompanyName = nil
	h.documents.On("FindDocument", mock.Anything, models.KindQuote, "doc-1", "company-1").Return(doc, nil)
	h.users.On("GetUser", mock.Anything, "user-1").Return(user, nil)
	created := h.expectCreate("n-2")

	var sent delivery.AttachmentEmail
	h.sender.On("SendWithAttachments", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(delivery.AttachmentEmail) }).
		Return("ses-78", nil)
	h.notifications.On("MarkSent", mock.Anything, "n-2", "ses-78", fixedNow).Return(nil)
	h.documents.On("AdvanceStatus", mock.Anything, models.KindQuote, "doc-1", "draft", "sent").Return(true, nil)

	res, err := h.orch.SendQuoteEmail(context.Background(), caller, "doc-1", QuoteEmailOptions{
		CustomMessage: `<script>alert("x")</script> Merci`,
	})

	require.NoError(t, err)
	assert.Equal(t, MsgQuoteSent, res.Message)
	assert.Equal(t, models.TypeQuoteSent, created.Type)
	assert.Equal(t, "doc-1", *created.QuoteID)
	assert.Equal(t, "Devis D-2024-007", created.Subject)

	assert.Equal(t, "noreply@zenbilling.com", sent.From.Email)
	assert.Equal(t, "devis-D-2024-007.pdf", sent.Attachments[0].Filename)
	assert.Contains(t, sent.HTML, "Message personnalisé")
	assert.Contains(t, sent.HTML, "&lt;script&gt;")
	assert.NotContains(t, sent.HTML, "<script>")
	assert.Contains(t, sent.HTML, "votre devis n° D-2024-007")
	h.documents.AssertExpectations(t)
}

func TestSendQuoteEmail_NonDraftStatusUntouched(t *testing.T) {
	h := newHarness(t)
	h.documents.On("FindDocument", mock.Anything, models.KindQuote, "doc-1", "company-1").
		Return(sampleDocument(models.KindQuote, "accepted"), nil)
	h.users.On("GetUser", mock.Anything, "user-1").Return(sampleUser(), nil)
	h.expectCreate("n-3")
	h.sender.On("SendWithAttachments", mock.Anything, mock.Anything).Return("ses-79", nil)
	h.notifications.On("MarkSent", mock.Anything, "n-3", "ses-79", fixedNow).Return(nil)

	_, err := h.orch.SendQuoteEmail(context.Background(), caller, "doc-1", QuoteEmailOptions{})

	require.NoError(t, err)
	h.documents.AssertNotCalled(t, "AdvanceStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendInvoiceEmail_StatusSideEffectFailureIgnored(t *testing.T) {
	h := newHarness(t)
	h.documents.On("FindDocument", mock.Anything, models.KindInvoice, "doc-1", "company-1").
		Return(sampleDocument(models.KindInvoice, models.InvoiceStatusPending), nil)
	h.users.On("GetUser", mock.Anything, "user-1").Return(sampleUser(), nil)
	h.expectCreate("n-4")
	h.sender.On("SendWithAttachments", mock.Anything, mock.Anything).Return("ses-80", nil)
	h.notifications.On("MarkSent", mock.Anything, "n-4", "ses-80", fixedNow).Return(nil)
	h.documents.On("AdvanceStatus", mock.Anything, models.KindInvoice, "doc-1", "pending", "sent").
		Return(false, errors.NewDatabaseError("update invoice status", stderrors.New("deadlock")))

	res, err := h.orch.SendInvoiceEmail(context.Background(), caller, "doc-1", InvoiceEmailOptions{})

	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, res.Status)
}

func TestSendInvoiceEmail_Preconditions(t *testing.T) {
	noEmail := sampleDocument(models.KindInvoice, models.InvoiceStatusPending)
	noEmail.Customer.Email = strPtr(" ")

	tests := []struct {
		name     string
		setup    func(h *harness)
		wantCode errors.ErrorCode
		wantMsg  string
	}{
		{
			name: "invoice not found",
			setup: func(h *harness) {
				h.documents.On("FindDocument", mock.Anything, models.KindInvoice, "doc-1", "company-1").
					Return(nil, errors.NewNotFoundError("Facture non trouvée", "doc-1"))
			},
			wantCode: errors.ErrCodeNotFound,
			wantMsg:  "Facture non trouvée",
		},
		{
			name: "customer without email",
			setup: func(h *harness) {
				h.documents.On("FindDocument", mock.Anything, models.KindInvoice, "doc-1", "company-1").Return(noEmail, nil)
			},
			wantCode: errors.ErrCodeInvalidState,
			wantMsg:  MsgCustomerNoEmail,
		},
		{
			name: "user not found",
			setup: func(h *harness) {
				h.documents.On("FindDocument", mock.Anything, models.KindInvoice, "doc-1", "company-1").
					Return(sampleDocument(models.KindInvoice, models.InvoiceStatusPending), nil)
				h.users.On("GetUser", mock.Anything, "user-1").
					Return(nil, errors.NewNotFoundError("Utilisateur non trouvé", "user-1"))
			},
			wantCode: errors.ErrCodeNotFound,
			wantMsg:  "Utilisateur non trouvé",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			_, err := h.orch.SendInvoiceEmail(context.Background(), caller, "doc-1", InvoiceEmailOptions{})

			se, ok := errors.AsStandard(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, se.Code)
			assert.Equal(t, tt.wantMsg, se.Message)
			h.notifications.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			assert.Zero(t, h.renderer.calls)
		})
	}
}

func TestSendInvoiceEmail_RenderFailureMarksRecordFailed(t *testing.T) {
	h := newHarness(t)
	h.renderer.err = stderrors.New("chrome crashed")
	h.documents.On("FindDocument", mock.Anything, models.KindInvoice, "doc-1", "company-1").
		Return(sampleDocument(models.KindInvoice, models.InvoiceStatusPending), nil)
	h.users.On("GetUser", mock.Anything, "user-1").Return(sampleUser(), nil)
	h.expectCreate("n-5")
	h.notifications.On("MarkFailed", mock.Anything, "n-5").Return(nil)

	_, err := h.orch.SendInvoiceEmail(context.Background(), caller, "doc-1", InvoiceEmailOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeRenderError))
	h.notifications.AssertExpectations(t)
	h.sender.AssertNotCalled(t, "SendWithAttachments", mock.Anything, mock.Anything)
}

func TestSendInvoiceEmail_DeliveryFailureLeavesRecordPending(t *testing.T) {
	h := newHarness(t)
	h.documents.On("FindDocument", mock.Anything, models.KindInvoice, "doc-1", "company-1").
		Return(sampleDocument(models.KindInvoice, models.InvoiceStatusPending), nil)
	h.users.On("GetUser", mock.Anything, "user-1").Return(sampleUser(), nil)
	h.expectCreate("n-6")
	h.sender.On("SendWithAttachments", mock.Anything, mock.Anything).
		Return("", errors.NewDeliveryFailedError("ses", stderrors.New("MessageRejected")))

	_, err := h.orch.SendInvoiceEmail(context.Background(), caller, "doc-1", InvoiceEmailOptions{})

	assert.True(t, errors.Is(err, errors.ErrCodeDeliveryFailed))
	h.notifications.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything)
	h.notifications.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.documents.AssertNotCalled(t, "AdvanceStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// ==========================
// SendBulkDocuments
// ==========================

func TestSendBulkDocuments_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.SendBulkDocuments(context.Background(), caller, nil)
	assert.Equal(t, MsgDocumentsRequired, fieldErrors(t, err)["documents"])

	_, err = h.orch.SendBulkDocuments(context.Background(), caller, []DocumentDispatch{
		{Kind: "receipt", DocumentID: "r-1"},
		{Kind: models.KindQuote},
	})
	fields := fieldErrors(t, err)
	assert.Equal(t, MsgInvalidKind, fields["documents[0].kind"])
	assert.Equal(t, MsgDocumentIDRequired, fields["documents[1].documentId"])
}

func TestSendBulkDocuments_CountsOutcomes(t *testing.T) {
	documents := &MockDocuments{}
	users := &MockUsers{}
	store := newMemoryNotifications()
	sender := &fakeSender{concurrency: 2}

	invoice := sampleDocument(models.KindInvoice, models.InvoiceStatusPending)
	quote := sampleDocument(models.KindQuote, models.QuoteStatusDraft)
	quote.ID = "doc-2"
	documents.On("FindDocument", mock.Anything, models.KindInvoice, "doc-1", "company-1").Return(invoice, nil)
	documents.On("FindDocument", mock.Anything, models.KindQuote, "doc-2", "company-1").Return(quote, nil)
	documents.On("FindDocument", mock.Anything, models.KindInvoice, "missing", "company-1").
		Return(nil, errors.NewNotFoundError("Facture non trouvée", "missing"))
	documents.On("AdvanceStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, "sent").Return(true, nil)
	users.On("GetUser", mock.Anything, "user-1").Return(sampleUser(), nil)

	orch := NewOrchestrator(Dependencies{
		Notifications: store,
		Documents:     documents,
		Users:         users,
		Renderer:      &fakeRenderer{},
		Sender:        sender,
	}, Config{FallbackSender: "noreply@zenbilling.com"}, logger.NewNoOpLogger())

	out, err := orch.SendBulkDocuments(context.Background(), caller, []DocumentDispatch{
		{Kind: models.KindInvoice, DocumentID: "doc-1", CustomMessage: "Merci"},
		{Kind: models.KindQuote, DocumentID: "doc-2"},
		{Kind: models.KindInvoice, DocumentID: "missing"},
	})

	require.NoError(t, err)
	assert.Equal(t, models.BulkOutcome{Succeeded: 2, Failed: 1, Total: 3}, *out)
	assert.Equal(t, 2, store.countByStatus()[models.StatusSent])
	documents.AssertNumberOfCalls(t, "AdvanceStatus", 2)
}

// ==========================
// Read side
// ==========================

func TestReadOperationsDelegate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stats := &models.Stats{Total: 3, Sent: 2, Failed: 1}
	h.reads.On("Stats", mock.Anything, models.StatsFilter{CompanyID: "company-1"}).Return(stats, nil)
	page := &models.HistoryPage{Notifications: []models.Notification{}, Pagination: models.Pagination{Page: 1, Limit: 20}}
	h.reads.On("History", mock.Anything, models.HistoryFilter{CompanyID: "company-1", Status: models.StatusSent}).Return(page, nil)
	h.reads.On("Get", mock.Anything, caller, "n-1").Return(nil, errors.NewNotFoundError("Notification non trouvée", "n-1"))

	gotStats, err := h.orch.GetStats(ctx, models.StatsFilter{CompanyID: "company-1"})
	require.NoError(t, err)
	assert.Equal(t, stats, gotStats)

	gotPage, err := h.orch.GetHistory(ctx, models.HistoryFilter{CompanyID: "company-1", Status: models.StatusSent})
	require.NoError(t, err)
	assert.Equal(t, page, gotPage)

	_, err = h.orch.GetNotification(ctx, caller, "n-1")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	assert.Equal(t, "orchestrator.GetNotification", h.lastSpan(t).Name())
	assert.Equal(t, codes.Error, h.lastSpan(t).Status().Code)
}

func TestComposeDocumentEmail_IndividualCustomer(t *testing.T) {
	doc := sampleDocument(models.KindInvoice, models.InvoiceStatusPending)
	doc.Customer = models.Customer{Type: models.CustomerIndividual, FirstName: strPtr("Zoé"), LastName: strPtr("Martin")}

	html, err := composeDocumentEmail(doc, sampleUser(), "")

	require.NoError(t, err)
	assert.Contains(t, html, "Bonjour Zoé Martin,")
	assert.Contains(t, html, "<h1 style=\"color: #333; margin-bottom: 20px;\">Facture F-2024-001</h1>")

	raw, err := json.Marshal(doc.Filename())
	require.NoError(t, err)
	assert.Equal(t, `"invoice-F-2024-001.pdf"`, string(raw))
}
