package orchestrator

import (
	"context"

	"notification-workers/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

const (
	MsgStatsRetrieved   = "Statistiques récupérées avec succès"
	MsgHistoryRetrieved = "Historique récupéré avec succès"
	MsgNotificationRead = "Notification récupérée avec succès"
)

// GetStats returns the zero-filled per-status tally for the filter.
func (o *Orchestrator) GetStats(ctx context.Context, f models.StatsFilter) (stats *models.Stats, err error) {
	ctx, span := o.startSpan(ctx, "GetStats", models.Caller{CompanyID: f.CompanyID})
	defer func() { endSpan(span, err) }()

	return o.reads.Stats(ctx, f)
}

// GetHistory returns one page of notifications, newest first.
func (o *Orchestrator) GetHistory(ctx context.Context, f models.HistoryFilter) (page *models.HistoryPage, err error) {
	ctx, span := o.startSpan(ctx, "GetHistory", models.Caller{UserID: f.UserID, CompanyID: f.CompanyID},
		attribute.Int("page", f.Page),
		attribute.Int("limit", f.Limit),
	)
	defer func() { endSpan(span, err) }()

	return o.reads.History(ctx, f)
}

// GetNotification returns one record of the caller's company.
func (o *Orchestrator) GetNotification(ctx context.Context, caller models.Caller, id string) (n *models.Notification, err error) {
	ctx, span := o.startSpan(ctx, "GetNotification", caller, attribute.String("notification.id", id))
	defer func() { endSpan(span, err) }()

	return o.reads.Get(ctx, caller, id)
}
