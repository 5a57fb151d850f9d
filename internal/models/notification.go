// internal/models/notification.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType classifies a notification. The set is closed.
type NotificationType string

const (
	TypeCustom          NotificationType = "custom"
	TypeInvoiceSent     NotificationType = "invoice_sent"
	TypeQuoteSent       NotificationType = "quote_sent"
	TypePaymentReminder NotificationType = "payment_reminder"
	TypePaymentReceived NotificationType = "payment_received"
	TypeWelcome         NotificationType = "welcome"
	TypePasswordReset   NotificationType = "password_reset"
)

// AllTypes lists every notification type.
func AllTypes() []NotificationType {
	return []NotificationType{
		TypeCustom, TypeInvoiceSent, TypeQuoteSent, TypePaymentReminder,
		TypePaymentReceived, TypeWelcome, TypePasswordReset,
	}
}

func (t NotificationType) Valid() bool {
	switch t {
	case TypeCustom, TypeInvoiceSent, TypeQuoteSent, TypePaymentReminder,
		TypePaymentReceived, TypeWelcome, TypePasswordReset:
		return true
	}
	return false
}

// ParseType rejects anything outside the closed set.
func ParseType(s string) (NotificationType, error) {
	t := NotificationType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown notification type %q", s)
	}
	return t, nil
}

// Status is the delivery lifecycle state of a notification. The set is closed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusOpened    Status = "opened"
	StatusClicked   Status = "clicked"
	StatusBounced   Status = "bounced"
	StatusFailed    Status = "failed"
)

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusPending, StatusSent, StatusDelivered, StatusOpened,
		StatusClicked, StatusBounced, StatusFailed,
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusOpened,
		StatusClicked, StatusBounced, StatusFailed:
		return true
	}
	return false
}

// ParseStatus rejects anything outside the closed set.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown notification status %q", s)
	}
	return st, nil
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusBounced, StatusFailed:
		return true
	case StatusPending, StatusSent, StatusDelivered, StatusOpened, StatusClicked:
		return false
	}
	return false
}

// Caller is the authenticated identity a request is made on behalf of.
type Caller struct {
	UserID    string `json:"userId"`
	CompanyID string `json:"companyId"`
}

// Notification is the persisted audit record of one outbound message.
type Notification struct {
	ID             string           `json:"notificationId"`
	UserID         string           `json:"userId"`
	CompanyID      string           `json:"companyId"`
	CustomerID     *string          `json:"customerId,omitempty"`
	InvoiceID      *string          `json:"invoiceId,omitempty"`
	QuoteID        *string          `json:"quoteId,omitempty"`
	RecipientEmail string           `json:"recipientEmail"`
	RecipientName  *string          `json:"recipientName,omitempty"`
	SenderEmail    string           `json:"senderEmail"`
	SenderName     string           `json:"senderName"`
	Subject        string           `json:"subject"`
	HTMLContent    string           `json:"htmlContent"`
	TextContent    *string          `json:"textContent,omitempty"`
	Type           NotificationType `json:"type"`
	Status         Status           `json:"status"`
	Variables      json.RawMessage  `json:"variables,omitempty"`
	Metadata       json.RawMessage  `json:"metadata,omitempty"`
	ScheduledAt    *time.Time       `json:"scheduledAt,omitempty"`
	Priority       int              `json:"priority"`
	SentAt         *time.Time       `json:"sentAt,omitempty"`
	ExternalID     *string          `json:"externalId,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// DefaultPriority is applied when a request carries none.
const DefaultPriority = 5

// DispatchResult is returned by every single-notification dispatch.
type DispatchResult struct {
	NotificationID string     `json:"notificationId"`
	Status         Status     `json:"status"`
	Message        string     `json:"message"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	ExternalID     string     `json:"externalId,omitempty"`
}

// BulkOutcome aggregates independent per-item results.
type BulkOutcome struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Stats is a zero-filled tally per status plus the total.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Opened    int `json:"opened"`
	Clicked   int `json:"clicked"`
	Bounced   int `json:"bounced"`
	Failed    int `json:"failed"`
}

// Add counts n records of status s.
func (st *Stats) Add(s Status, n int) {
	switch s {
	case StatusPending:
		st.Pending += n
	case StatusSent:
		st.Sent += n
	case StatusDelivered:
		st.Delivered += n
	case StatusOpened:
		st.Opened += n
	case StatusClicked:
		st.Clicked += n
	case StatusBounced:
		st.Bounced += n
	case StatusFailed:
		st.Failed += n
	default:
		return
	}
	st.Total += n
}

// StatsFilter scopes a stats query. Zero values mean unbounded.
type StatsFilter struct {
	CompanyID string
	StartDate *time.Time
	EndDate   *time.Time
}

// HistoryFilter scopes a history query.
type HistoryFilter struct {
	Type           NotificationType
	Status         Status
	UserID         string
	CompanyID      string
	RecipientEmail string
	StartDate      *time.Time
	EndDate        *time.Time
	Page           int
	Limit          int
}

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Normalize applies page/limit defaults and the limit cap.
func (f *HistoryFilter) Normalize() {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
}

// Offset is the number of rows skipped for the current page.
func (f HistoryFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// HistoryPage is one page of notifications, newest first.
type HistoryPage struct {
	Notifications []Notification `json:"notifications"`
	Pagination    Pagination     `json:"pagination"`
}

// PageCount returns ceil(total/limit).
func PageCount(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
