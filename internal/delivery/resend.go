package delivery

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ResendAPI is the subset of the Resend emails service used for sending.
type ResendAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendProvider sends through the Resend HTTP API.
type ResendProvider struct {
	api ResendAPI
}

func NewResendProvider(api ResendAPI) *ResendProvider {
	return &ResendProvider{api: api}
}

// NewResendProviderFromKey builds the provider on the stock Resend client.
func NewResendProviderFromKey(apiKey string) *ResendProvider {
	return NewResendProvider(resend.NewClient(apiKey).Emails)
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) SendPlain(ctx context.Context, email PlainEmail) (string, error) {
	return p.send(ctx, p.request(email))
}

// SendTemplated is unsupported: Resend holds no template store for this service.
func (p *ResendProvider) SendTemplated(_ context.Context, email TemplatedEmail) (string, error) {
	return "", fmt.Errorf("resend: templated sends are not supported (template %q)", email.TemplateID)
}

func (p *ResendProvider) SendWithAttachments(ctx context.Context, email AttachmentEmail) (string, error) {
	req := p.request(email.PlainEmail)
	for _, att := range email.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Filename:    att.Filename,
			Content:     att.Content,
			ContentType: att.ContentType,
		})
	}
	return p.send(ctx, req)
}

func (p *ResendProvider) request(email PlainEmail) *resend.SendEmailRequest {
	return &resend.SendEmailRequest{
		From:    email.From.String(),
		To:      emails(email.To),
		Cc:      emails(email.Cc),
		Bcc:     emails(email.Bcc),
		ReplyTo: email.ReplyTo,
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}
}

func (p *ResendProvider) send(ctx context.Context, req *resend.SendEmailRequest) (string, error) {
	resp, err := p.api.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("resend send: %w", err)
	}
	return resp.Id, nil
}
