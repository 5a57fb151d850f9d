// Package orchestrator coordinates a dispatch end to end: it validates the
// request, persists the pending record, renders the document when one is
// attached, hands the message to the delivery adapter and records the
// outcome.
package orchestrator

import (
	"context"
	"time"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/common/metrics"
	"notification-workers/internal/delivery"
	"notification-workers/internal/document"
	"notification-workers/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName            = "notification-workers/orchestrator"
	defaultFallbackSender = "noreply@zenbilling.com"

	defaultMarkSentAttempts = 3
	defaultMarkSentDelay    = 100 * time.Millisecond
	maxMarkSentDelay        = time.Second
)

// NotificationRepository persists notification records.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkSent(ctx context.Context, id, externalID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string) error
}

// DocumentRepository loads billing documents and applies the post-send
// status change.
type DocumentRepository interface {
	FindDocument(ctx context.Context, kind models.DocumentKind, id, companyID string) (*models.Document, error)
	AdvanceStatus(ctx context.Context, kind models.DocumentKind, id, from, to string) (bool, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Renderer produces the PDF of an already loaded document.
type Renderer interface {
	RenderDocument(ctx context.Context, doc *models.Document) (*document.Rendered, error)
}

// Sender is the delivery adapter surface the orchestrator needs.
type Sender interface {
	Send(ctx context.Context, r delivery.Request) (string, error)
	SendWithAttachments(ctx context.Context, email delivery.AttachmentEmail) (string, error)
	DefaultSender() delivery.Address
	Concurrency() int
}

// ReadModel serves stats, history and single lookups.
type ReadModel interface {
	Stats(ctx context.Context, f models.StatsFilter) (*models.Stats, error)
	History(ctx context.Context, f models.HistoryFilter) (*models.HistoryPage, error)
	Get(ctx context.Context, caller models.Caller, id string) (*models.Notification, error)
}

// Dependencies groups the collaborators built once at startup.
type Dependencies struct {
	Notifications NotificationRepository
	Documents     DocumentRepository
	Users         UserRepository
	Renderer      Renderer
	Sender        Sender
	Reads         ReadModel
}

// Config carries the orchestrator settings.
type Config struct {
	// FallbackSender is the address used for document emails when the
	// sending user has none.
	FallbackSender string
	// MarkSentAttempts bounds the writes recording a provider acceptance.
	MarkSentAttempts int
	// MarkSentDelay is the first pause between those writes; it doubles up
	// to one second.
	MarkSentDelay time.Duration
}

type Orchestrator struct {
	notifications NotificationRepository
	documents     DocumentRepository
	users         UserRepository
	renderer      Renderer
	sender        Sender
	reads         ReadModel

	fallbackSender   string
	markSentAttempts int
	markSentDelay    time.Duration
	tracer           trace.Tracer
	now              func() time.Time
	logger           logger.Logger
}

// Option configures optional behavior.
type Option func(*Orchestrator)

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(deps Dependencies, cfg Config, log logger.Logger, opts ...Option) *Orchestrator {
	fallback := cfg.FallbackSender
	if fallback == "" {
		fallback = defaultFallbackSender
	}
	attempts := cfg.MarkSentAttempts
	if attempts < 1 {
		attempts = defaultMarkSentAttempts
	}
	delay := cfg.MarkSentDelay
	if delay <= 0 {
		delay = defaultMarkSentDelay
	}
	o := &Orchestrator{
		notifications:    deps.Notifications,
		documents:        deps.Documents,
		users:            deps.Users,
		renderer:         deps.Renderer,
		sender:           deps.Sender,
		reads:            deps.Reads,
		fallbackSender:   fallback,
		markSentAttempts: attempts,
		markSentDelay:    delay,
		tracer:           otel.Tracer(tracerName),
		now:              func() time.Time { return time.Now().UTC() },
		logger:           log.WithFields(map[string]interface{}{"component": "notification-orchestrator"}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, caller models.Caller, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("caller.user_id", caller.UserID),
		attribute.String("caller.company_id", caller.CompanyID),
	)
	return o.tracer.Start(ctx, "orchestrator."+name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and closes it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.KindOf(err)))
	}
	span.End()
}

func countDispatch(t models.NotificationType, outcome string) {
	metrics.NotificationsDispatched.WithLabelValues(string(t), outcome).Inc()
}

// fanOut runs fn for every index through the delivery pool, bounded by the
// adapter's concurrency.
func (o *Orchestrator) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int) error) models.BulkOutcome {
	return delivery.RunBulk(ctx, n, o.sender.Concurrency(), fn)
}
