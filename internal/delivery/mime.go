package delivery

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
)

const base64LineLength = 76

// buildRawMessage renders a multipart/mixed message: the bodies in a nested
// multipart/alternative part, followed by one base64 part per attachment.
func buildRawMessage(email AttachmentEmail) ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	headers := [][2]string{
		{"From", email.From.String()},
		{"To", strings.Join(emails(email.To), ", ")},
	}
	if len(email.Cc) > 0 {
		headers = append(headers, [2]string{"Cc", strings.Join(emails(email.Cc), ", ")})
	}
	if email.ReplyTo != "" {
		headers = append(headers, [2]string{"Reply-To", email.ReplyTo})
	}
	headers = append(headers,
		[2]string{"Subject", mime.QEncoding.Encode("utf-8", email.Subject)},
		[2]string{"MIME-Version", "1.0"},
		[2]string{"Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mixed.Boundary())},
	)
	for _, h := range headers {
		if err := writeHeader(&buf, h[0], h[1]); err != nil {
			return nil, err
		}
	}
	buf.WriteString("\r\n")

	if err := writeBodies(mixed, email.PlainEmail); err != nil {
		return nil, err
	}

	for _, att := range email.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", mime.FormatMediaType(contentType, map[string]string{"name": att.Filename}))
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))
		h.Set("Content-Transfer-Encoding", "base64")

		part, err := mixed.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, att.Content); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeBodies(mixed *multipart.Writer, email PlainEmail) error {
	var inner bytes.Buffer
	alt := multipart.NewWriter(&inner)

	bodies := []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=UTF-8", email.Text},
		{"text/html; charset=UTF-8", email.HTML},
	}
	for _, b := range bodies {
		if b.body == "" {
			continue
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", b.contentType)
		h.Set("Content-Transfer-Encoding", "base64")
		part, err := alt.CreatePart(h)
		if err != nil {
			return err
		}
		if err := writeBase64(part, []byte(b.body)); err != nil {
			return err
		}
	}
	if err := alt.Close(); err != nil {
		return err
	}

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary()))
	part, err := mixed.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(inner.Bytes())
	return err
}

// writeHeader refuses values carrying a line break, which would start a new
// header.
func writeHeader(buf *bytes.Buffer, key, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("header %s contains a line break", key)
	}
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
	return nil
}

func writeBase64(w interface{ Write([]byte) (int, error) }, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > base64LineLength {
		if _, err := w.Write([]byte(encoded[:base64LineLength] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[base64LineLength:]
	}
	_, err := w.Write([]byte(encoded + "\r\n"))
	return err
}
