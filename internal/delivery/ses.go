package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

const charsetUTF8 = "UTF-8"

// SESAPI is the subset of the SES client used for sending.
type SESAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
	SendTemplatedEmail(ctx context.Context, input *ses.SendTemplatedEmailInput) (*ses.SendTemplatedEmailOutput, error)
	SendRawEmail(ctx context.Context, input *ses.SendRawEmailInput) (*ses.SendRawEmailOutput, error)
}

// SESProvider sends through Amazon SES. Delivery events come back through
// the configuration set's SNS destination.
type SESProvider struct {
	api              SESAPI
	configurationSet string
}

func NewSESProvider(api SESAPI, configurationSet string) *SESProvider {
	return &SESProvider{api: api, configurationSet: configurationSet}
}

func (p *SESProvider) Name() string { return "ses" }

func (p *SESProvider) SendPlain(ctx context.Context, email PlainEmail) (string, error) {
	body := &types.Body{}
	if email.HTML != "" {
		body.Html = content(email.HTML)
	}
	if email.Text != "" {
		body.Text = content(email.Text)
	}

	out, err := p.api.SendEmail(ctx, &ses.SendEmailInput{
		Source:               awssdk.String(email.From.String()),
		Destination:          destination(email.Envelope),
		ReplyToAddresses:     replyTo(email.ReplyTo),
		ConfigurationSetName: p.configSet(),
		Message: &types.Message{
			Subject: content(email.Subject),
			Body:    body,
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses SendEmail: %w", err)
	}
	return awssdk.ToString(out.MessageId), nil
}

func (p *SESProvider) SendTemplated(ctx context.Context, email TemplatedEmail) (string, error) {
	vars := email.Variables
	if vars == nil {
		vars = map[string]interface{}{}
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("encode template data: %w", err)
	}

	out, err := p.api.SendTemplatedEmail(ctx, &ses.SendTemplatedEmailInput{
		Source:               awssdk.String(email.From.String()),
		Destination:          destination(email.Envelope),
		ReplyToAddresses:     replyTo(email.ReplyTo),
		ConfigurationSetName: p.configSet(),
		Template:             awssdk.String(email.TemplateID),
		TemplateData:         awssdk.String(string(data)),
	})
	if err != nil {
		return "", fmt.Errorf("ses SendTemplatedEmail: %w", err)
	}
	return awssdk.ToString(out.MessageId), nil
}

func (p *SESProvider) SendWithAttachments(ctx context.Context, email AttachmentEmail) (string, error) {
	raw, err := buildRawMessage(email)
	if err != nil {
		return "", fmt.Errorf("build mime message: %w", err)
	}

	recipients := make([]string, 0, len(email.To)+len(email.Cc)+len(email.Bcc))
	for _, group := range [][]Address{email.To, email.Cc, email.Bcc} {
		for _, a := range group {
			recipients = append(recipients, a.Email)
		}
	}

	out, err := p.api.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:               awssdk.String(email.From.String()),
		Destinations:         recipients,
		ConfigurationSetName: p.configSet(),
		RawMessage:           &types.RawMessage{Data: raw},
	})
	if err != nil {
		return "", fmt.Errorf("ses SendRawEmail: %w", err)
	}
	return awssdk.ToString(out.MessageId), nil
}

func (p *SESProvider) configSet() *string {
	if p.configurationSet == "" {
		return nil
	}
	return awssdk.String(p.configurationSet)
}

func content(s string) *types.Content {
	return &types.Content{Data: awssdk.String(s), Charset: awssdk.String(charsetUTF8)}
}

func destination(env Envelope) *types.Destination {
	return &types.Destination{
		ToAddresses:  emails(env.To),
		CcAddresses:  emails(env.Cc),
		BccAddresses: emails(env.Bcc),
	}
}

func replyTo(addr string) []string {
	if addr == "" {
		return nil
	}
	return []string{addr}
}
