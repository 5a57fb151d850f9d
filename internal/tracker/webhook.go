package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notification-workers/internal/common/logger"
	"notification-workers/internal/common/response"

	"github.com/gorilla/mux"
)

const (
	snsTypeNotification = "Notification"
	snsTypeConfirmation = "SubscriptionConfirmation"

	defaultMaxBody = 1 << 20
)

var sesEvents = map[string]Event{
	"Delivery":          EventDelivered,
	"Open":              EventOpened,
	"Click":             EventClicked,
	"Bounce":            EventBounced,
	"Reject":            EventFailed,
	"Rendering Failure": EventFailed,
}

var brevoEvents = map[string]Event{
	"delivered":     EventDelivered,
	"opened":        EventOpened,
	"unique_opened": EventOpened,
	"proxy_open":    EventOpened,
	"click":         EventClicked,
	"hard_bounce":   EventBounced,
	"soft_bounce":   EventBounced,
	"blocked":       EventFailed,
	"invalid_email": EventFailed,
	"error":         EventFailed,
}

type snsEnvelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	TopicArn  string `json:"TopicArn"`
	Message   string `json:"Message"`
	Token     string `json:"Token"`
	Timestamp string `json:"Timestamp"`
}

type sesNotification struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string `json:"messageId"`
		Timestamp string `json:"timestamp"`
	} `json:"mail"`
}

type brevoEvent struct {
	Event     string `json:"event"`
	MessageID string `json:"message-id"`
	Date      string `json:"date"`
	TSEvent   int64  `json:"ts_event"`
}

// SubscriptionConfirmer answers SNS subscription handshakes.
type SubscriptionConfirmer interface {
	ConfirmSubscription(ctx context.Context, topicARN, token string) (string, error)
}

// Webhook is the unauthenticated provider callback endpoint.
type Webhook struct {
	tracker   *Tracker
	confirmer SubscriptionConfirmer
	topicARN  string
	maxBody   int64
	logger    logger.Logger
}

// NewWebhook builds the ingress. confirmer may be nil when SNS is not used;
// a non-empty topicARN restricts confirmations to that topic.
func NewWebhook(t *Tracker, confirmer SubscriptionConfirmer, topicARN string, maxBody int64, log logger.Logger) *Webhook {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Webhook{
		tracker:   t,
		confirmer: confirmer,
		topicARN:  topicARN,
		maxBody:   maxBody,
		logger:    log.WithFields(map[string]interface{}{"component": "delivery-webhook"}),
	}
}

// RegisterRoutes mounts the webhook on r.
func (h *Webhook) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/webhooks/delivery", h.ServeHTTP).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/brevo", h.ServeHTTP).Methods(http.MethodPost)
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil || !json.Valid(body) {
		response.WriteJSON(w, http.StatusBadRequest, response.Envelope{
			Success:   false,
			Message:   "Corps de requête JSON invalide",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
		return
	}

	processed := h.Receive(r.Context(), body)
	response.WriteJSON(w, http.StatusOK, response.Success("Webhook traité avec succès",
		map[string]int{"processed": processed}))
}

// Receive parses body and applies every event it carries. Failures are
// logged, never returned. It returns the number of events handed to the
// tracker.
func (h *Webhook) Receive(ctx context.Context, body []byte) int {
	events, err := h.parse(ctx, body)
	if err != nil {
		h.logger.Warn("unrecognized webhook payload", map[string]interface{}{"error": err.Error()})
		return 0
	}

	for _, ev := range events {
		if _, err := h.tracker.Apply(ctx, ev); err != nil {
			h.logger.Error("delivery event not applied", map[string]interface{}{
				"messageId": ev.MessageID,
				"event":     string(ev.Event),
				"error":     err.Error(),
			})
		}
	}
	return len(events)
}

func (h *Webhook) parse(ctx context.Context, body []byte) ([]DeliveryEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, err
		}
		var out []DeliveryEvent
		for _, item := range batch {
			evs, err := h.parse(ctx, item)
			if err != nil {
				h.logger.Warn("skipping webhook batch item", map[string]interface{}{"error": err.Error()})
				continue
			}
			out = append(out, evs...)
		}
		return out, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, err
	}

	if _, ok := probe["Type"]; ok {
		return h.parseSNS(ctx, trimmed)
	}
	if _, ok := probe["event"]; ok {
		ev, err := parseBrevo(trimmed)
		if err != nil {
			return nil, err
		}
		return []DeliveryEvent{ev}, nil
	}
	if _, ok := probe["eventType"]; ok {
		return parseSES(trimmed, "ses")
	}
	if _, ok := probe["notificationType"]; ok {
		return parseSES(trimmed, "ses")
	}
	return nil, fmt.Errorf("unknown payload shape")
}

func (h *Webhook) parseSNS(ctx context.Context, body []byte) ([]DeliveryEvent, error) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case snsTypeConfirmation:
		h.confirm(ctx, env)
		return nil, nil
	case snsTypeNotification:
		return parseSES([]byte(env.Message), "ses-sns")
	default:
		h.logger.Info("ignoring sns message", map[string]interface{}{"type": env.Type})
		return nil, nil
	}
}

func (h *Webhook) confirm(ctx context.Context, env snsEnvelope) {
	log := h.logger.WithFields(map[string]interface{}{"topicArn": env.TopicArn})
	if h.confirmer == nil {
		log.Warn("sns subscription confirmation received but sns is disabled", nil)
		return
	}
	if h.topicARN != "" && env.TopicArn != h.topicARN {
		log.Warn("sns subscription confirmation for unexpected topic", nil)
		return
	}
	arn, err := h.confirmer.ConfirmSubscription(ctx, env.TopicArn, env.Token)
	if err != nil {
		log.Error("sns subscription confirmation failed", map[string]interface{}{"error": err.Error()})
		return
	}
	log.Info("sns subscription confirmed", map[string]interface{}{"subscriptionArn": arn})
}

func parseSES(body []byte, source string) ([]DeliveryEvent, error) {
	var n sesNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode ses event: %w", err)
	}

	kind := n.EventType
	if kind == "" {
		kind = n.NotificationType
	}
	ev, ok := sesEvents[kind]
	if !ok {
		return nil, nil
	}

	return []DeliveryEvent{{
		MessageID:  n.Mail.MessageID,
		Event:      ev,
		OccurredAt: parseTime(n.Mail.Timestamp),
		Source:     source,
		Raw:        kind,
	}}, nil
}

func parseBrevo(body []byte) (DeliveryEvent, error) {
	var b brevoEvent
	if err := json.Unmarshal(body, &b); err != nil {
		return DeliveryEvent{}, fmt.Errorf("decode brevo event: %w", err)
	}

	occurred := parseTime(b.Date)
	if b.TSEvent > 0 {
		occurred = time.Unix(b.TSEvent, 0).UTC()
	}

	return DeliveryEvent{
		MessageID:  strings.TrimSpace(b.MessageID),
		Event:      brevoEvents[strings.ToLower(b.Event)],
		OccurredAt: occurred,
		Source:     "brevo",
		Raw:        b.Event,
	}, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
