// Package delivery hands outbound email to the configured provider and
// reports the provider message id back to the caller.
package delivery

import (
	"net/mail"
	"strings"
)

// Address is a mailbox with an optional display name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// String renders the RFC 5322 form, encoding non-ASCII display names.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Email) == ""
}

func emails(addrs []Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// Attachment is a file carried by an email. Content holds the raw bytes;
// providers apply their own transfer encoding.
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

// Envelope is shared by every email shape.
type Envelope struct {
	From    Address
	To      []Address
	Cc      []Address
	Bcc     []Address
	ReplyTo string
	Subject string
}

type PlainEmail struct {
	Envelope
	HTML string
	Text string
}

type TemplatedEmail struct {
	Envelope
	TemplateID string
	Variables  map[string]interface{}
}

type AttachmentEmail struct {
	PlainEmail
	Attachments []Attachment
}

// Shape names the provider call a request maps to.
type Shape string

const (
	ShapePlain      Shape = "plain"
	ShapeTemplated  Shape = "templated"
	ShapeAttachment Shape = "attachment"
)

// Request is the union form accepted by Send and SendBulk.
type Request struct {
	Envelope
	HTML        string
	Text        string
	TemplateID  string
	Variables   map[string]interface{}
	Attachments []Attachment
}

// Shape picks templated when a template id is set, then attachments,
// then plain.
func (r Request) Shape() Shape {
	switch {
	case r.TemplateID != "":
		return ShapeTemplated
	case len(r.Attachments) > 0:
		return ShapeAttachment
	default:
		return ShapePlain
	}
}

func (r Request) plain() PlainEmail {
	return PlainEmail{Envelope: r.Envelope, HTML: r.HTML, Text: r.Text}
}
