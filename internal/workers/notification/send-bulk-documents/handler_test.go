package sendbulkdocuments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/models"
	"notification-workers/internal/orchestrator"
	"notification-workers/internal/workers/notification/jobs"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) SendBulkDocuments(ctx context.Context, caller models.Caller, items []orchestrator.DocumentDispatch) (*models.BulkOutcome, error) {
	args := m.Called(ctx, caller, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BulkOutcome), args.Error(1)
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	log := logger.NewTestLogger(t)
	return NewHandler(svc, jobs.NewRunner(jobs.Options{TaskType: TaskType, Logger: log}), log)
}

func TestHandler_Execute_DecodesItems(t *testing.T) {
	svc := new(MockService)
	h := newTestHandler(t, svc)

	want := []orchestrator.DocumentDispatch{
		{Kind: models.KindInvoice, DocumentID: "inv-1", IncludePaymentLink: true},
		{Kind: models.KindQuote, DocumentID: "q-1", CustomMessage: "Merci"},
	}
	svc.On("SendBulkDocuments", mock.Anything, models.Caller{UserID: "u", CompanyID: "c"}, want).
		Return(&models.BulkOutcome{Succeeded: 2, Total: 2}, nil)

	out, err := h.execute(context.Background(), []byte(`{"userId":"u","companyId":"c","documents":[
		{"kind":"invoice","documentId":"inv-1","includePaymentLink":true},
		{"kind":"quote","documentId":"q-1","customMessage":"Merci"}
	]}`))

	require.NoError(t, err)
	assert.Equal(t, "Envoi terminé: 2 réussis, 0 échoués", out.Message)
	svc.AssertExpectations(t)
}

func TestHandler_Execute_ValidationError(t *testing.T) {
	svc := new(MockService)
	h := newTestHandler(t, svc)
	svc.On("SendBulkDocuments", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.NewValidationError(orchestrator.MsgValidation,
			errors.FieldError{Field: "documents[0].kind", Message: orchestrator.MsgInvalidKind}))

	_, err := h.execute(context.Background(), []byte(`{"userId":"u","companyId":"c","documents":[{"kind":"memo","documentId":"x"}]}`))

	se, ok := errors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, "documents[0].kind", se.Fields[0].Field)
}
