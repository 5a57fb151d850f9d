package orchestrator

import (
	"bytes"
	"html/template"

	"notification-workers/internal/models"
)

var documentEmailTemplate = template.Must(template.New("document-email").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px;">
    <h1 style="color: #333; margin-bottom: 20px;">{{.Title}} {{.Number}}</h1>
    <p style="font-size: 16px; margin-bottom: 15px;">Bonjour {{.CustomerName}},</p>
    <p style="font-size: 16px; margin-bottom: 15px;">Veuillez trouver ci-joint votre {{.Noun}} n° {{.Number}}.</p>
{{- if .CustomMessage}}
    <div style="background-color: white; padding: 20px; border-radius: 8px; margin: 20px 0;">
      <h3 style="color: #333; margin-top: 0;">Message personnalisé :</h3>
      <p style="font-size: 16px; margin: 0;">{{.CustomMessage}}</p>
    </div>
{{- end}}
    <div style="margin-top: 30px; padding-top: 20px; border-top: 1px solid #ddd;">
      <p style="margin: 0 0 5px 0;">Cordialement,</p>
      <p style="margin: 0; font-weight: bold;">{{.SenderName}}</p>
      <p style="margin: 5px 0 0 0; color: #666;">{{.CompanyName}}</p>
    </div>
  </div>
</div>
`))

type documentEmailView struct {
	Title         string
	Noun          string
	Number        string
	CustomerName  string
	CustomMessage string
	SenderName    string
	CompanyName   string
}

// composeDocumentEmail builds the body of an invoice or quote email. Every
// interpolated value, the custom message included, is HTML-escaped.
func composeDocumentEmail(doc *models.Document, user *models.User, customMessage string) (string, error) {
	noun := "facture"
	if doc.Kind == models.KindQuote {
		noun = "devis"
	}

	var buf bytes.Buffer
	err := documentEmailTemplate.Execute(&buf, documentEmailView{
		Title:         doc.Kind.Title(),
		Noun:          noun,
		Number:        doc.Number,
		CustomerName:  doc.Customer.DisplayName(),
		CustomMessage: customMessage,
		SenderName:    user.FullName(),
		CompanyName:   user.SignatureCompany(),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func documentSubject(doc *models.Document) string {
	return doc.Kind.Title() + " " + doc.Number
}
