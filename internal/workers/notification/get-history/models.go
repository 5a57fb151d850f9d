package gethistory

import (
	"time"

	"notification-workers/internal/models"
	"notification-workers/internal/workers/notification/jobs"
)

type Input struct {
	jobs.CallerVars
	Type           models.NotificationType `json:"type,omitempty"`
	Status         models.Status           `json:"status,omitempty"`
	RecipientEmail string                  `json:"recipientEmail,omitempty"`
	FilterUserID   string                  `json:"filterUserId,omitempty"`
	StartDate      *time.Time              `json:"startDate,omitempty"`
	EndDate        *time.Time              `json:"endDate,omitempty"`
	Page           int                     `json:"page,omitempty"`
	Limit          int                     `json:"limit,omitempty"`
}

// Filter scopes the history to the caller's company. userId identifies the
// caller; filterUserId narrows the listing to one sender.
func (in Input) Filter() models.HistoryFilter {
	f := models.HistoryFilter{
		Type:           in.Type,
		Status:         in.Status,
		UserID:         in.FilterUserID,
		CompanyID:      in.CompanyID,
		RecipientEmail: in.RecipientEmail,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Page:           in.Page,
		Limit:          in.Limit,
	}
	f.Normalize()
	return f
}
