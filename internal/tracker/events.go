// Package tracker advances notification records from asynchronous provider
// delivery events and serves the read side (stats, history, lookup).
package tracker

import (
	"time"

	"notification-workers/internal/models"
)

// Event is a normalized provider delivery event.
type Event string

const (
	EventDelivered Event = "delivered"
	EventOpened    Event = "opened"
	EventClicked   Event = "clicked"
	EventBounced   Event = "bounced"
	EventFailed    Event = "failed"
)

func (e Event) Valid() bool {
	switch e {
	case EventDelivered, EventOpened, EventClicked, EventBounced, EventFailed:
		return true
	}
	return false
}

// Status is the notification status an event asks for.
func (e Event) Status() models.Status {
	switch e {
	case EventDelivered:
		return models.StatusDelivered
	case EventOpened:
		return models.StatusOpened
	case EventClicked:
		return models.StatusClicked
	case EventBounced:
		return models.StatusBounced
	case EventFailed:
		return models.StatusFailed
	}
	return ""
}

// DeliveryEvent is one provider report about one message.
type DeliveryEvent struct {
	MessageID  string    `json:"messageId"`
	Event      Event     `json:"event"`
	OccurredAt time.Time `json:"occurredAt"`
	Source     string    `json:"source"`
	Raw        string    `json:"raw,omitempty"`
}

// Outcome reports what Apply did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
	OutcomeIgnored   Outcome = "ignored"
)

// progressRank orders the non-terminal statuses a webhook may move through.
// pending has no rank: it never advances from a provider event.
func progressRank(s models.Status) (int, bool) {
	switch s {
	case models.StatusSent:
		return 1, true
	case models.StatusDelivered:
		return 2, true
	case models.StatusOpened:
		return 3, true
	case models.StatusClicked:
		return 4, true
	case models.StatusPending, models.StatusBounced, models.StatusFailed:
		return 0, false
	}
	return 0, false
}

// NextStatus returns the status current moves to when e is reported, and
// false when the event does not change it.
func NextStatus(current models.Status, e Event) (models.Status, bool) {
	switch current {
	case models.StatusPending, models.StatusBounced, models.StatusFailed:
		return current, false
	case models.StatusSent, models.StatusDelivered, models.StatusOpened, models.StatusClicked:
	default:
		return current, false
	}

	target := e.Status()
	switch target {
	case models.StatusBounced, models.StatusFailed:
		return target, true
	case models.StatusDelivered, models.StatusOpened, models.StatusClicked:
		from, _ := progressRank(current)
		to, _ := progressRank(target)
		if to > from {
			return target, true
		}
		return current, false
	case models.StatusPending, models.StatusSent:
		return current, false
	}
	return current, false
}
