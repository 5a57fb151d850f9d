package tracker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"notification-workers/internal/common/config"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/models"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const topicARN = "arn:aws:sns:eu-west-3:123456789012:ses-events"

func newWebhookServer(t *testing.T, repo Repository, confirmer SubscriptionConfirmer) *httptest.Server {
	t.Helper()
	tr := NewTracker(repo, nil, config.TrackerConfig{}, logger.NewNoOpLogger())
	wh := NewWebhook(tr, confirmer, topicARN, 0, logger.NewNoOpLogger())

	r := mux.NewRouter()
	wh.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func snsNotification(t *testing.T, inner string) string {
	t.Helper()
	env := map[string]string{
		"Type":      "Notification",
		"MessageId": "sns-1",
		"TopicArn":  topicARN,
		"Message":   inner,
	}
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return string(b)
}

// ==========================
// SES through SNS
// ==========================

func TestWebhook_SESDeliveryViaSNS(t *testing.T) {
	repo := newMemoryRepository(*record("n-1", models.StatusSent))
	srv := newWebhookServer(t, repo, nil)

	inner := `{"eventType":"Delivery","mail":{"messageId":"ext-n-1","timestamp":"2024-06-01T12:00:00.000Z"}}`
	status, body := post(t, srv, "/webhooks/delivery", snsNotification(t, inner))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Webhook traité avec succès", body["message"])
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["processed"])
	assert.Equal(t, models.StatusDelivered, repo.status("n-1"))
}

func TestWebhook_SESEventTypes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		start   models.Status
		want    models.Status
	}{
		{"open", `{"eventType":"Open","mail":{"messageId":"ext-n-1"}}`, models.StatusDelivered, models.StatusOpened},
		{"click", `{"eventType":"Click","mail":{"messageId":"ext-n-1"}}`, models.StatusSent, models.StatusClicked},
		{"bounce notification", `{"notificationType":"Bounce","mail":{"messageId":"ext-n-1"}}`, models.StatusOpened, models.StatusBounced},
		{"reject", `{"eventType":"Reject","mail":{"messageId":"ext-n-1"}}`, models.StatusSent, models.StatusFailed},
		{"complaint is ignored", `{"eventType":"Complaint","mail":{"messageId":"ext-n-1"}}`, models.StatusDelivered, models.StatusDelivered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepository(*record("n-1", tt.start))
			srv := newWebhookServer(t, repo, nil)

			status, _ := post(t, srv, "/webhooks/delivery", tt.payload)

			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.want, repo.status("n-1"))
		})
	}
}

func TestWebhook_SubscriptionConfirmation(t *testing.T) {
	confirmer := &MockConfirmer{}
	confirmer.On("ConfirmSubscription", mock.Anything, topicARN, "tok-1").Return(topicARN+":sub", nil).Once()
	srv := newWebhookServer(t, newMemoryRepository(), confirmer)

	payload := `{"Type":"SubscriptionConfirmation","TopicArn":"` + topicARN + `","Token":"tok-1"}`
	status, body := post(t, srv, "/webhooks/delivery", payload)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["data"].(map[string]interface{})["processed"])
	confirmer.AssertExpectations(t)
}

func TestWebhook_SubscriptionForOtherTopicRefused(t *testing.T) {
	confirmer := &MockConfirmer{}
	srv := newWebhookServer(t, newMemoryRepository(), confirmer)

	payload := `{"Type":"SubscriptionConfirmation","TopicArn":"arn:aws:sns:eu-west-3:999:other","Token":"tok-1"}`
	status, _ := post(t, srv, "/webhooks/delivery", payload)

	assert.Equal(t, http.StatusOK, status)
	confirmer.AssertNotCalled(t, "ConfirmSubscription", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhook_ConfirmationErrorStillAcknowledged(t *testing.T) {
	confirmer := &MockConfirmer{}
	confirmer.On("ConfirmSubscription", mock.Anything, topicARN, "tok-1").Return("", stderrors.New("throttled"))
	srv := newWebhookServer(t, newMemoryRepository(), confirmer)

	payload := `{"Type":"SubscriptionConfirmation","TopicArn":"` + topicARN + `","Token":"tok-1"}`
	status, _ := post(t, srv, "/webhooks/delivery", payload)

	assert.Equal(t, http.StatusOK, status)
}

// ==========================
// Brevo
// ==========================

func TestWebhook_BrevoEvents(t *testing.T) {
	tests := []struct {
		event string
		start models.Status
		want  models.Status
	}{
		{"delivered", models.StatusSent, models.StatusDelivered},
		{"unique_opened", models.StatusDelivered, models.StatusOpened},
		{"proxy_open", models.StatusSent, models.StatusOpened},
		{"click", models.StatusOpened, models.StatusClicked},
		{"hard_bounce", models.StatusDelivered, models.StatusBounced},
		{"soft_bounce", models.StatusSent, models.StatusBounced},
		{"blocked", models.StatusSent, models.StatusFailed},
		{"invalid_email", models.StatusSent, models.StatusFailed},
		{"error", models.StatusClicked, models.StatusFailed},
		{"spam", models.StatusDelivered, models.StatusDelivered},
		{"unsubscribed", models.StatusDelivered, models.StatusDelivered},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			repo := newMemoryRepository(*record("n-1", tt.start))
			srv := newWebhookServer(t, repo, nil)

			payload := `{"event":"` + tt.event + `","message-id":"ext-n-1","date":"2024-06-01 12:00:00","ts_event":1717243200}`
			status, body := post(t, srv, "/webhooks/brevo", payload)

			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, true, body["success"])
			assert.Equal(t, tt.want, repo.status("n-1"))
		})
	}
}

func TestWebhook_BatchPayload(t *testing.T) {
	repo := newMemoryRepository(*record("n-1", models.StatusSent), *record("n-2", models.StatusSent))
	srv := newWebhookServer(t, repo, nil)

	payload := `[
		{"event":"delivered","message-id":"ext-n-1"},
		{"eventType":"Bounce","mail":{"messageId":"ext-n-2"}},
		{"something":"else"}
	]`
	status, body := post(t, srv, "/webhooks/delivery", payload)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["data"].(map[string]interface{})["processed"])
	assert.Equal(t, models.StatusDelivered, repo.status("n-1"))
	assert.Equal(t, models.StatusBounced, repo.status("n-2"))
}

// ==========================
// Malformed and unknown input
// ==========================

func TestWebhook_InvalidJSON(t *testing.T) {
	srv := newWebhookServer(t, newMemoryRepository(), nil)

	status, body := post(t, srv, "/webhooks/delivery", `{"event": "delivered",`)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Corps de requête JSON invalide", body["message"])
}

func TestWebhook_UnknownMessageAcknowledged(t *testing.T) {
	repo := newMemoryRepository(*record("n-1", models.StatusSent))
	srv := newWebhookServer(t, repo, nil)

	status, body := post(t, srv, "/webhooks/brevo", `{"event":"delivered","message-id":"nobody"}`)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, models.StatusSent, repo.status("n-1"))
}

func TestWebhook_UnknownShapeAcknowledged(t *testing.T) {
	srv := newWebhookServer(t, newMemoryRepository(), nil)

	status, body := post(t, srv, "/webhooks/delivery", `{"hello":"world"}`)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["data"].(map[string]interface{})["processed"])
}

func TestWebhook_DatabaseErrorStillAcknowledged(t *testing.T) {
	repo := &MockRepository{}
	repo.On("FindByExternalID", mock.Anything, "ext-n-1").Return(nil, stderrors.New("db down"))
	srv := newWebhookServer(t, repo, nil)

	status, _ := post(t, srv, "/webhooks/brevo", `{"event":"delivered","message-id":"ext-n-1"}`)

	assert.Equal(t, http.StatusOK, status)
	repo.AssertExpectations(t)
}

func TestWebhook_GetNotAllowed(t *testing.T) {
	srv := newWebhookServer(t, newMemoryRepository(), nil)

	resp, err := http.Get(srv.URL + "/webhooks/delivery")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestReceive_ReturnsEventCount(t *testing.T) {
	repo := newMemoryRepository(*record("n-1", models.StatusSent))
	tr := NewTracker(repo, nil, config.TrackerConfig{}, logger.NewNoOpLogger())
	wh := NewWebhook(tr, nil, "", 0, logger.NewNoOpLogger())

	n := wh.Receive(context.Background(), []byte(`{"event":"opened","message-id":"ext-n-1"}`))

	assert.Equal(t, 1, n)
	assert.Equal(t, models.StatusOpened, repo.status("n-1"))
}
