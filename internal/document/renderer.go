// internal/document/renderer.go
package document

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/common/metrics"
	"notification-workers/internal/models"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// DocumentSource loads an invoice or quote with its line items, company and
// customer. It returns a NOT_FOUND StandardError when the record is absent.
type DocumentSource interface {
	GetDocument(ctx context.Context, kind models.DocumentKind, id string) (*models.Document, error)
}

// PDFOptions carries the per-document print settings.
type PDFOptions struct {
	FooterHTML string
}

// PDFEngine turns a self-contained HTML page into PDF bytes.
type PDFEngine interface {
	RenderPDF(ctx context.Context, html string, opts PDFOptions) ([]byte, error)
}

// Rendered is a generated document. It is never persisted.
type Rendered struct {
	Filename string
	Content  []byte
}

// Renderer binds documents into HTML and hands the result to a PDFEngine.
type Renderer struct {
	source    DocumentSource
	engine    PDFEngine
	templates *template.Template
	logger    logger.Logger
}

func NewRenderer(source DocumentSource, engine PDFEngine, log logger.Logger) (*Renderer, error) {
	tmpl, err := template.New("document").Funcs(Funcs()).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse document templates: %w", err)
	}

	return &Renderer{
		source:    source,
		engine:    engine,
		templates: tmpl,
		logger:    log.WithFields(map[string]interface{}{"component": "document-renderer"}),
	}, nil
}

type documentView struct {
	Number             string
	IssueDate          time.Time
	DueDate            *time.Time
	ValidityDate       *time.Time
	Company            models.Company
	Customer           models.Customer
	CustomerName       string
	Lines              []Line
	Subtotal           decimal.Decimal
	Tax                decimal.Decimal
	Total              decimal.Decimal
	Conditions         *string
	Notes              *string
	LatePaymentPenalty *string
}

// Render loads the document and produces its PDF.
func (r *Renderer) Render(ctx context.Context, kind models.DocumentKind, id string) (*Rendered, error) {
	if !kind.Valid() {
		return nil, errors.NewValidationError("Type de document invalide",
			errors.FieldError{Field: "kind", Message: fmt.Sprintf("unknown document kind %q", kind)})
	}

	doc, err := r.source.GetDocument(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	return r.RenderDocument(ctx, doc)
}

// RenderDocument renders an already loaded document.
func (r *Renderer) RenderDocument(ctx context.Context, doc *models.Document) (*Rendered, error) {
	start := time.Now()
	log := r.logger.WithFields(map[string]interface{}{
		"kind":       string(doc.Kind),
		"documentId": doc.ID,
		"number":     doc.Number,
	})

	html, footer, err := r.BindHTML(doc)
	if err != nil {
		return nil, err
	}

	pdf, err := r.engine.RenderPDF(ctx, html, PDFOptions{FooterHTML: footer})
	if err != nil {
		log.Error("pdf engine failed", map[string]interface{}{"error": err.Error()})
		return nil, errors.NewRenderError("pdf", err)
	}

	metrics.DocumentRenderDuration.WithLabelValues(string(doc.Kind)).Observe(time.Since(start).Seconds())
	log.Info("document rendered", map[string]interface{}{
		"bytes":      len(pdf),
		"durationMs": time.Since(start).Milliseconds(),
	})

	return &Rendered{Filename: doc.Filename(), Content: pdf}, nil
}

// BindHTML computes the totals and executes the document and footer
// templates. Unknown VAT rates surface as VALIDATION_ERROR.
func (r *Renderer) BindHTML(doc *models.Document) (string, string, error) {
	totals, err := ComputeTotals(doc.Items)
	if err != nil {
		return "", "", errors.NewValidationError("Taux de TVA invalide",
			errors.FieldError{Field: "items.vatRate", Message: err.Error()})
	}

	if !totals.Matches(doc.AmountIncludingTax) {
		r.logger.Warn("persisted total differs from computed total", map[string]interface{}{
			"documentId": doc.ID,
			"persisted":  doc.AmountIncludingTax.String(),
			"computed":   totals.Total.StringFixed(2),
		})
	}

	view := documentView{
		Number:             doc.Number,
		IssueDate:          doc.IssueDate,
		DueDate:            doc.DueDate,
		ValidityDate:       doc.ValidityDate,
		Company:            doc.Company,
		Customer:           doc.Customer,
		CustomerName:       doc.Customer.DisplayName(),
		Lines:              totals.Lines,
		Subtotal:           doc.AmountExcludingTax,
		Tax:                doc.Tax,
		Total:              doc.AmountIncludingTax,
		Conditions:         doc.Conditions,
		Notes:              doc.Notes,
		LatePaymentPenalty: doc.LatePaymentPenalty,
	}

	var body bytes.Buffer
	if err := r.templates.ExecuteTemplate(&body, string(doc.Kind)+".html.tmpl", view); err != nil {
		return "", "", errors.NewRenderError("template", err)
	}

	var footer bytes.Buffer
	if err := r.templates.ExecuteTemplate(&footer, "footer", doc.Company); err != nil {
		return "", "", errors.NewRenderError("footer", err)
	}

	return body.String(), footer.String(), nil
}
