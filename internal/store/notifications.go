package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/models"

	"github.com/google/uuid"
)

const notificationColumns = `notification_id, user_id, company_id, customer_id, invoice_id, quote_id,
	recipient_email, recipient_name, sender_email, sender_name, subject, html_content, text_content,
	type, status, variables, metadata, scheduled_at, priority, sent_at, external_id, created_at, updated_at`

// NotificationStore persists the audit record of every outbound message.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Create inserts n as a pending record. A missing id is generated.
func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Priority == 0 {
		n.Priority = models.DefaultPriority
	}
	now := time.Now().UTC()
	n.Status = models.StatusPending
	n.CreatedAt = now
	n.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		n.ID, n.UserID, n.CompanyID, toNullString(n.CustomerID), toNullString(n.InvoiceID), toNullString(n.QuoteID),
		n.RecipientEmail, toNullString(n.RecipientName), n.SenderEmail, n.SenderName, n.Subject, n.HTMLContent,
		toNullString(n.TextContent), string(n.Type), string(n.Status), toNullJSON(n.Variables), toNullJSON(n.Metadata),
		toNullTime(n.ScheduledAt), n.Priority, toNullTime(n.SentAt), toNullString(n.ExternalID), n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return errors.NewDatabaseError("create notification", err)
	}
	return nil
}

// MarkSent moves a pending record to sent with the provider id.
func (s *NotificationStore) MarkSent(ctx context.Context, id, externalID string, sentAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification
		SET status = $2, sent_at = $3, external_id = $4, updated_at = $5
		WHERE notification_id = $1 AND status = $6`,
		id, string(models.StatusSent), sentAt, externalID, time.Now().UTC(), string(models.StatusPending),
	)
	if err != nil {
		return errors.NewDatabaseError("mark notification sent", err)
	}
	return expectOneRow(res, "mark notification sent", id)
}

// MarkFailed moves a pending record to failed.
func (s *NotificationStore) MarkFailed(ctx context.Context, id string) error {
	_, err := s.CompareAndSetStatus(ctx, id, models.StatusPending, models.StatusFailed)
	return err
}

// CompareAndSetStatus updates the status only if it still equals from.
// It reports whether a row changed.
func (s *NotificationStore) CompareAndSetStatus(ctx context.Context, id string, from, to models.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification
		SET status = $3, updated_at = $4
		WHERE notification_id = $1 AND status = $2`,
		id, string(from), string(to), time.Now().UTC(),
	)
	if err != nil {
		return false, errors.NewDatabaseError("update notification status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewDatabaseError("update notification status", err)
	}
	return n == 1, nil
}

// Get returns a record scoped to companyID. An empty companyID is unscoped.
func (s *NotificationStore) Get(ctx context.Context, id, companyID string) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notification WHERE notification_id = $1`
	args := []interface{}{id}
	if companyID != "" {
		query += ` AND company_id = $2`
		args = append(args, companyID)
	}

	n, err := scanNotification(s.db.QueryRowContext(ctx, query, args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("Notification non trouvée", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get notification", err)
	}
	return n, nil
}

// FindByExternalID resolves a provider message id.
func (s *NotificationStore) FindByExternalID(ctx context.Context, externalID string) (*models.Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notification WHERE external_id = $1`, externalID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("Notification non trouvée", externalID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("find notification by external id", err)
	}
	return n, nil
}

// CountByStatus tallies records per status.
func (s *NotificationStore) CountByStatus(ctx context.Context, f models.StatsFilter) (*models.Stats, error) {
	var w where
	if f.CompanyID != "" {
		w.add("company_id = ?", f.CompanyID)
	}
	if f.StartDate != nil {
		w.add("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		w.add("created_at <= ?", *f.EndDate)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM notification`+w.sql()+` GROUP BY status`, w.args...)
	if err != nil {
		return nil, errors.NewDatabaseError("count notifications", err)
	}
	defer rows.Close()

	stats := &models.Stats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.NewDatabaseError("count notifications", err)
		}
		stats.Add(models.Status(status), count)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("count notifications", err)
	}
	return stats, nil
}

// List returns one page of records matching f, newest first, and the total
// match count. f must already be normalized.
func (s *NotificationStore) List(ctx context.Context, f models.HistoryFilter) ([]models.Notification, int, error) {
	var w where
	if f.Type != "" {
		w.add("type = ?", string(f.Type))
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.UserID != "" {
		w.add("user_id = ?", f.UserID)
	}
	if f.CompanyID != "" {
		w.add("company_id = ?", f.CompanyID)
	}
	if f.RecipientEmail != "" {
		w.add("recipient_email = ?", f.RecipientEmail)
	}
	if f.StartDate != nil {
		w.add("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		w.add("created_at <= ?", *f.EndDate)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, errors.NewDatabaseError("count notification history", err)
	}

	args := append(append([]interface{}{}, w.args...), f.Limit, f.Offset())
	query := fmt.Sprintf(`SELECT %s FROM notification%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, w.sql(), len(w.args)+1, len(w.args)+2)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.NewDatabaseError("list notification history", err)
	}
	defer rows.Close()

	out := make([]models.Notification, 0, f.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, errors.NewDatabaseError("list notification history", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewDatabaseError("list notification history", err)
	}
	return out, total, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n                                      models.Notification
		customerID, invoiceID, quoteID         sql.NullString
		recipientName, textContent, externalID sql.NullString
		variables, metadata                    []byte
		scheduledAt, sentAt                    sql.NullTime
		notificationType, status               string
	)
	err := row.Scan(
		&n.ID, &n.UserID, &n.CompanyID, &customerID, &invoiceID, &quoteID,
		&n.RecipientEmail, &recipientName, &n.SenderEmail, &n.SenderName, &n.Subject, &n.HTMLContent, &textContent,
		&notificationType, &status, &variables, &metadata, &scheduledAt, &n.Priority, &sentAt, &externalID,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.CustomerID = nullString(customerID)
	n.InvoiceID = nullString(invoiceID)
	n.QuoteID = nullString(quoteID)
	n.RecipientName = nullString(recipientName)
	n.TextContent = nullString(textContent)
	n.ExternalID = nullString(externalID)
	n.ScheduledAt = nullTime(scheduledAt)
	n.SentAt = nullTime(sentAt)
	n.Type = models.NotificationType(notificationType)
	n.Status = models.Status(status)
	if len(variables) > 0 {
		n.Variables = variables
	}
	if len(metadata) > 0 {
		n.Metadata = metadata
	}
	return &n, nil
}

// where accumulates AND-ed predicates written with ? placeholders and
// numbers them for lib/pq.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.Replace(clause, "?", fmt.Sprintf("$%d", len(w.args)), 1))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func expectOneRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError(op, err)
	}
	if n == 0 {
		return errors.NewInvalidStateError("La notification n'est plus en attente", "id: "+id)
	}
	return nil
}
