package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notification-workers/internal/common/config"
	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/common/metrics"
	"notification-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	dedupKeyPrefix  = "delivery:event:"
	defaultDedupTTL = 72 * time.Hour
	maxCASAttempts  = 3
)

// Repository is the notification persistence the tracker reads and updates.
type Repository interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.Notification, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to models.Status) (bool, error)
	Get(ctx context.Context, id, companyID string) (*models.Notification, error)
	CountByStatus(ctx context.Context, f models.StatsFilter) (*models.Stats, error)
	List(ctx context.Context, f models.HistoryFilter) ([]models.Notification, int, error)
}

// AuditIndex receives a copy of every resolved event.
type AuditIndex interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
}

// Tracker applies delivery events to notification records.
type Tracker struct {
	repo       Repository
	redis      redis.Cmdable
	audit      AuditIndex
	auditIndex string
	dedupTTL   time.Duration
	logger     logger.Logger
}

// Option configures optional collaborators.
type Option func(*Tracker)

// WithAudit indexes resolved events into index.
func WithAudit(audit AuditIndex, index string) Option {
	return func(t *Tracker) {
		t.audit = audit
		t.auditIndex = index
	}
}

func NewTracker(repo Repository, rdb redis.Cmdable, cfg config.TrackerConfig, log logger.Logger, opts ...Option) *Tracker {
	ttl := time.Duration(cfg.DedupTTL) * time.Second
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	t := &Tracker{
		repo:     repo,
		redis:    rdb,
		dedupTTL: ttl,
		logger:   log.WithFields(map[string]interface{}{"component": "lifecycle-tracker"}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Apply records ev against the notification whose external id matches.
// Unknown ids and unknown events are discarded, never returned as errors.
func (t *Tracker) Apply(ctx context.Context, ev DeliveryEvent) (Outcome, error) {
	ev.MessageID = strings.TrimSpace(ev.MessageID)
	log := t.logger.WithFields(map[string]interface{}{
		"messageId": ev.MessageID,
		"event":     string(ev.Event),
		"source":    ev.Source,
	})

	if ev.MessageID == "" || !ev.Event.Valid() {
		log.Warn("discarding unusable delivery event", nil)
		t.count(ev, OutcomeIgnored)
		return OutcomeIgnored, nil
	}

	claimed, key := t.claim(ctx, ev, log)
	if !claimed {
		log.Debug("delivery event already recorded", nil)
		t.count(ev, OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}

	outcome, n, err := t.advance(ctx, ev)
	if err != nil {
		t.release(ctx, key, log)
		log.Error("failed to apply delivery event", map[string]interface{}{"error": err.Error()})
		return "", err
	}
	t.count(ev, outcome)

	if outcome == OutcomeIgnored {
		// The record may not carry its external id yet; a replay must still land.
		t.release(ctx, key, log)
		log.Warn("delivery event for unknown message discarded", nil)
		return outcome, nil
	}

	log.Info("delivery event processed", map[string]interface{}{
		"notificationId": n.ID,
		"outcome":        string(outcome),
		"status":         string(n.Status),
	})
	t.index(ctx, ev, n, outcome, log)
	return outcome, nil
}

// advance resolves the record and compare-and-sets its status, re-reading
// when a concurrent update wins.
func (t *Tracker) advance(ctx context.Context, ev DeliveryEvent) (Outcome, *models.Notification, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		n, err := t.repo.FindByExternalID(ctx, ev.MessageID)
		if errors.Is(err, errors.ErrCodeNotFound) {
			return OutcomeIgnored, nil, nil
		}
		if err != nil {
			return "", nil, err
		}

		next, ok := NextStatus(n.Status, ev.Event)
		if !ok {
			return OutcomeStale, n, nil
		}

		swapped, err := t.repo.CompareAndSetStatus(ctx, n.ID, n.Status, next)
		if err != nil {
			return "", nil, err
		}
		if swapped {
			n.Status = next
			return OutcomeApplied, n, nil
		}
	}
	return "", nil, errors.NewDatabaseError("apply delivery event",
		fmt.Errorf("status of %s kept changing", ev.MessageID))
}

// claim takes the replay key. A Redis failure counts as claimed so the
// compare-and-set path still decides.
func (t *Tracker) claim(ctx context.Context, ev DeliveryEvent, log logger.Logger) (bool, string) {
	key := dedupKeyPrefix + ev.MessageID + ":" + string(ev.Event)
	if t.redis == nil {
		return true, ""
	}

	ok, err := t.redis.SetNX(ctx, key, ev.OccurredAt.UTC().Format(time.RFC3339), t.dedupTTL).Result()
	if err != nil {
		log.Warn("dedup check unavailable", map[string]interface{}{"error": err.Error()})
		return true, ""
	}
	return ok, key
}

func (t *Tracker) release(ctx context.Context, key string, log logger.Logger) {
	if key == "" || t.redis == nil {
		return
	}
	if err := t.redis.Del(ctx, key).Err(); err != nil {
		log.Warn("failed to release dedup key", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

type auditRecord struct {
	NotificationID string    `json:"notificationId"`
	CompanyID      string    `json:"companyId"`
	MessageID      string    `json:"messageId"`
	Event          Event     `json:"event"`
	Outcome        Outcome   `json:"outcome"`
	Status         string    `json:"status"`
	Source         string    `json:"source"`
	OccurredAt     time.Time `json:"occurredAt"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

func (t *Tracker) index(ctx context.Context, ev DeliveryEvent, n *models.Notification, outcome Outcome, log logger.Logger) {
	if t.audit == nil {
		return
	}
	rec := auditRecord{
		NotificationID: n.ID,
		CompanyID:      n.CompanyID,
		MessageID:      ev.MessageID,
		Event:          ev.Event,
		Outcome:        outcome,
		Status:         string(n.Status),
		Source:         ev.Source,
		OccurredAt:     ev.OccurredAt,
		ReceivedAt:     time.Now().UTC(),
	}
	if err := t.audit.IndexDocument(ctx, t.auditIndex, ev.MessageID+":"+string(ev.Event), rec); err != nil {
		log.Warn("failed to index delivery event", map[string]interface{}{"error": err.Error()})
	}
}

func (t *Tracker) count(ev DeliveryEvent, outcome Outcome) {
	metrics.DeliveryEvents.WithLabelValues(string(ev.Event), string(outcome)).Inc()
}
