package tracker

import (
	"context"

	"notification-workers/internal/models"
)

// Stats returns the zero-filled per-status tally.
func (t *Tracker) Stats(ctx context.Context, f models.StatsFilter) (*models.Stats, error) {
	return t.repo.CountByStatus(ctx, f)
}

// History returns one page of records, newest first.
func (t *Tracker) History(ctx context.Context, f models.HistoryFilter) (*models.HistoryPage, error) {
	f.Normalize()

	list, total, err := t.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Notification{}
	}

	return &models.HistoryPage{
		Notifications: list,
		Pagination: models.Pagination{
			Page:  f.Page,
			Limit: f.Limit,
			Total: total,
			Pages: models.PageCount(total, f.Limit),
		},
	}, nil
}

// Get returns one record visible to the caller's company.
func (t *Tracker) Get(ctx context.Context, caller models.Caller, id string) (*models.Notification, error) {
	return t.repo.Get(ctx, id, caller.CompanyID)
}
