package getstats

import (
	"time"

	"notification-workers/internal/models"
	"notification-workers/internal/workers/notification/jobs"
)

type Input struct {
	jobs.CallerVars
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// Filter scopes the tally to the caller's company, when one is given.
func (in Input) Filter() models.StatsFilter {
	return models.StatsFilter{
		CompanyID: in.CompanyID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
	}
}
