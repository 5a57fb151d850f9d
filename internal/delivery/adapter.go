package delivery

import (
	"context"
	"fmt"
	"time"

	"notification-workers/internal/common/config"
	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/common/metrics"
	"notification-workers/internal/models"
)

// Provider is one email backend. Implementations return the provider's
// message id on acceptance.
type Provider interface {
	Name() string
	SendPlain(ctx context.Context, email PlainEmail) (string, error)
	SendTemplated(ctx context.Context, email TemplatedEmail) (string, error)
	SendWithAttachments(ctx context.Context, email AttachmentEmail) (string, error)
}

// Adapter applies sender defaults, per-call timeouts and error mapping on
// top of a Provider.
type Adapter struct {
	provider    Provider
	defaultFrom Address
	timeout     time.Duration
	concurrency int
	logger      logger.Logger
}

func NewAdapter(provider Provider, cfg config.DeliveryConfig, log logger.Logger) *Adapter {
	concurrency := cfg.BulkConcurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Adapter{
		provider: provider,
		defaultFrom: Address{
			Email: cfg.DefaultFromEmail,
			Name:  cfg.DefaultFromName,
		},
		timeout:     config.GetDuration(cfg.Timeout),
		concurrency: concurrency,
		logger: log.WithFields(map[string]interface{}{
			"component": "delivery-adapter",
			"provider":  provider.Name(),
		}),
	}
}

// DefaultSender is used whenever a caller supplies no From address.
func (a *Adapter) DefaultSender() Address {
	return a.defaultFrom
}

// Concurrency is the bulk worker pool size.
func (a *Adapter) Concurrency() int {
	return a.concurrency
}

func (a *Adapter) SendPlain(ctx context.Context, email PlainEmail) (string, error) {
	email.Envelope = a.withDefaults(email.Envelope)
	return a.call(ctx, ShapePlain, email.Envelope, func(ctx context.Context) (string, error) {
		return a.provider.SendPlain(ctx, email)
	})
}

func (a *Adapter) SendTemplated(ctx context.Context, email TemplatedEmail) (string, error) {
	email.Envelope = a.withDefaults(email.Envelope)
	return a.call(ctx, ShapeTemplated, email.Envelope, func(ctx context.Context) (string, error) {
		return a.provider.SendTemplated(ctx, email)
	})
}

func (a *Adapter) SendWithAttachments(ctx context.Context, email AttachmentEmail) (string, error) {
	email.Envelope = a.withDefaults(email.Envelope)
	return a.call(ctx, ShapeAttachment, email.Envelope, func(ctx context.Context) (string, error) {
		return a.provider.SendWithAttachments(ctx, email)
	})
}

// Send dispatches r through the shape it selects.
func (a *Adapter) Send(ctx context.Context, r Request) (string, error) {
	switch r.Shape() {
	case ShapeTemplated:
		return a.SendTemplated(ctx, TemplatedEmail{
			Envelope:   r.Envelope,
			TemplateID: r.TemplateID,
			Variables:  r.Variables,
		})
	case ShapeAttachment:
		return a.SendWithAttachments(ctx, AttachmentEmail{
			PlainEmail:  r.plain(),
			Attachments: r.Attachments,
		})
	case ShapePlain:
		return a.SendPlain(ctx, r.plain())
	}
	return "", errors.NewInternalError(fmt.Errorf("unknown email shape %q", r.Shape()))
}

// SendBulk sends every request independently through a bounded pool.
// One failure never aborts the others.
func (a *Adapter) SendBulk(ctx context.Context, requests []Request) models.BulkOutcome {
	return RunBulk(ctx, len(requests), a.concurrency, func(ctx context.Context, i int) error {
		_, err := a.Send(ctx, requests[i])
		if err != nil {
			a.logger.Warn("bulk item failed", map[string]interface{}{
				"index": i,
				"error": err.Error(),
			})
		}
		return err
	})
}

func (a *Adapter) withDefaults(env Envelope) Envelope {
	if env.From.IsZero() {
		env.From = a.defaultFrom
	}
	return env
}

func (a *Adapter) call(ctx context.Context, shape Shape, env Envelope, send func(context.Context) (string, error)) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	id, err := send(ctx)
	if err != nil {
		metrics.ProviderSends.WithLabelValues(a.provider.Name(), string(shape), "failed").Inc()
		a.logger.Error("provider rejected email", map[string]interface{}{
			"shape":      string(shape),
			"recipients": len(env.To),
			"error":      err.Error(),
		})
		if se, ok := errors.AsStandard(err); ok && se.Code == errors.ErrCodeDeliveryFailed {
			return "", se
		}
		return "", errors.NewDeliveryFailedError(a.provider.Name(), err)
	}

	metrics.ProviderSends.WithLabelValues(a.provider.Name(), string(shape), "accepted").Inc()
	a.logger.Info("email accepted by provider", map[string]interface{}{
		"shape":      string(shape),
		"messageId":  id,
		"recipients": len(env.To),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return id, nil
}
