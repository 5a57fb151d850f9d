package sendinvoice

import (
	"context"
	"testing"
	"time"

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

func (m *MockService) SendInvoiceEmail(ctx context.Context, caller models.Caller, invoiceID string, opts orchestrator.InvoiceEmailOptions) (*models.DispatchResult, error) {
	args := m.Called(ctx, caller, invoiceID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DispatchResult), args.Error(1)
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	log := logger.NewTestLogger(t)
	return NewHandler(svc, jobs.NewRunner(jobs.Options{TaskType: TaskType, Logger: log}), log)
}

func TestHandler_Execute_PassesOptions(t *testing.T) {
	svc := new(MockService)
	h := newTestHandler(t, svc)

	scheduled := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	result := &models.DispatchResult{NotificationID: "n-1", Status: models.StatusSent, Message: orchestrator.MsgInvoiceSent}
	svc.On("SendInvoiceEmail", mock.Anything,
		models.Caller{UserID: "user-1", CompanyID: "company-1"},
		"inv-1",
		mock.MatchedBy(func(o orchestrator.InvoiceEmailOptions) bool {
			return o.IncludePaymentLink && o.CustomMessage == "Merci" &&
				o.ScheduledAt != nil && o.ScheduledAt.Equal(scheduled)
		})).Return(result, nil)

	out, err := h.execute(context.Background(), []byte(`{
		"userId": "user-1", "companyId": "company-1", "invoiceId": "inv-1",
		"includePaymentLink": true, "customMessage": "Merci",
		"scheduledAt": "2024-07-01T08:00:00Z"
	}`))

	require.NoError(t, err)
	assert.Equal(t, orchestrator.MsgInvoiceSent, out.Message)
	assert.Same(t, result, out.Data)
	svc.AssertExpectations(t)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{"not found", errors.NewNotFoundError("Facture non trouvée", "inv-9"), errors.ErrCodeNotFound},
		{"no customer email", errors.NewInvalidStateError(orchestrator.MsgCustomerNoEmail, "inv-9"), errors.ErrCodeInvalidState},
		{"render", errors.NewRenderError("pdf", assert.AnError), errors.ErrCodeRenderError},
		{"delivery", errors.NewDeliveryFailedError("resend", assert.AnError), errors.ErrCodeDeliveryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			h := newTestHandler(t, svc)
			svc.On("SendInvoiceEmail", mock.Anything, mock.Anything, "inv-9", mock.Anything).Return(nil, tt.err)

			_, err := h.execute(context.Background(), []byte(`{"userId":"u","companyId":"c","invoiceId":"inv-9"}`))

			assert.Equal(t, tt.code, errors.KindOf(err))
		})
	}
}
