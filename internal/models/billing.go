// internal/models/billing.go
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentKind distinguishes invoices from quotes.
type DocumentKind string

const (
	KindInvoice DocumentKind = "invoice"
	KindQuote   DocumentKind = "quote"
)

func (k DocumentKind) Valid() bool {
	return k == KindInvoice || k == KindQuote
}

// FilePrefix is the attachment filename prefix for the kind.
func (k DocumentKind) FilePrefix() string {
	if k == KindQuote {
		return "devis"
	}
	return "invoice"
}

// Title is the French document label used in subjects and headings.
func (k DocumentKind) Title() string {
	if k == KindQuote {
		return "Devis"
	}
	return "Facture"
}

// Business statuses of the external document records touched after a send.
const (
	InvoiceStatusPending = "pending"
	InvoiceStatusSent    = "sent"
	QuoteStatusDraft     = "draft"
	QuoteStatusSent      = "sent"
)

// VatRate is the categorical tax tag carried by a line item.
type VatRate string

const (
	VatZero         VatRate = "zero"
	VatReducedTier1 VatRate = "reduced_tier_1"
	VatReducedTier2 VatRate = "reduced_tier_2"
	VatReducedTier3 VatRate = "reduced_tier_3"
	VatStandard     VatRate = "standard"
)

// NormalizeVatRate maps the storage spelling (ZERO, REDUCED_1, ...) onto
// the canonical tags. Unknown values are returned unchanged.
func NormalizeVatRate(raw string) VatRate {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ZERO":
		return VatZero
	case "REDUCED_1", "REDUCED_TIER_1":
		return VatReducedTier1
	case "REDUCED_2", "REDUCED_TIER_2":
		return VatReducedTier2
	case "REDUCED_3", "REDUCED_TIER_3":
		return VatReducedTier3
	case "STANDARD":
		return VatStandard
	}
	return VatRate(raw)
}

type CustomerType string

const (
	CustomerBusiness   CustomerType = "business"
	CustomerIndividual CustomerType = "individual"
)

type Company struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	PostalCode string  `json:"postalCode"`
	City       string  `json:"city"`
	Country    *string `json:"country,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	SIRET      *string `json:"siret,omitempty"`
	TVAIntra   *string `json:"tvaIntra,omitempty"`
}

type Customer struct {
	ID            string       `json:"id"`
	Type          CustomerType `json:"type"`
	Email         *string      `json:"email,omitempty"`
	Phone         *string      `json:"phone,omitempty"`
	Address       *string      `json:"address,omitempty"`
	PostalCode    *string      `json:"postalCode,omitempty"`
	City          *string      `json:"city,omitempty"`
	BusinessName  *string      `json:"businessName,omitempty"`
	FirstName     *string      `json:"firstName,omitempty"`
	LastName      *string      `json:"lastName,omitempty"`
	TVAApplicable bool         `json:"tvaApplicable"`
	TVAIntra      *string      `json:"tvaIntra,omitempty"`
}

// DisplayName is the business name, or "first last" for individuals.
func (c Customer) DisplayName() string {
	if c.Type == CustomerBusiness && c.BusinessName != nil && *c.BusinessName != "" {
		return *c.BusinessName
	}
	return strings.TrimSpace(deref(c.FirstName) + " " + deref(c.LastName))
}

// HasEmail reports whether the customer can receive a document.
func (c Customer) HasEmail() bool {
	return c.Email != nil && strings.TrimSpace(*c.Email) != ""
}

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Unit        *string `json:"unit,omitempty"`
}

type LineItem struct {
	ID                    string          `json:"id"`
	Quantity              decimal.Decimal `json:"quantity"`
	UnitPriceExcludingTax decimal.Decimal `json:"unitPriceExcludingTax"`
	VatRate               VatRate         `json:"vatRate"`
	Name                  *string         `json:"name,omitempty"`
	Description           *string         `json:"description,omitempty"`
	Unit                  *string         `json:"unit,omitempty"`
	Product               *Product        `json:"product,omitempty"`
}

// ResolvedName prefers the catalog product over inline fields.
func (i LineItem) ResolvedName() string {
	if i.Product != nil {
		return i.Product.Name
	}
	return deref(i.Name)
}

func (i LineItem) ResolvedDescription() string {
	if i.Product != nil {
		return deref(i.Product.Description)
	}
	return deref(i.Description)
}

func (i LineItem) ResolvedUnit() string {
	if i.Product != nil {
		return deref(i.Product.Unit)
	}
	return deref(i.Unit)
}

// Document is an invoice or a quote with everything needed to render it.
type Document struct {
	Kind               DocumentKind    `json:"kind"`
	ID                 string          `json:"id"`
	Number             string          `json:"number"`
	Status             string          `json:"status"`
	CompanyID          string          `json:"companyId"`
	IssueDate          time.Time       `json:"issueDate"`
	DueDate            *time.Time      `json:"dueDate,omitempty"`
	ValidityDate       *time.Time      `json:"validityDate,omitempty"`
	AmountExcludingTax decimal.Decimal `json:"amountExcludingTax"`
	Tax                decimal.Decimal `json:"tax"`
	AmountIncludingTax decimal.Decimal `json:"amountIncludingTax"`
	Conditions         *string         `json:"conditions,omitempty"`
	Notes              *string         `json:"notes,omitempty"`
	LatePaymentPenalty *string         `json:"latePaymentPenalty,omitempty"`
	Company            Company         `json:"company"`
	Customer           Customer        `json:"customer"`
	Items              []LineItem      `json:"items"`
}

// Filename follows {invoice|devis}-{number}.pdf.
func (d Document) Filename() string {
	return d.Kind.FilePrefix() + "-" + d.Number + ".pdf"
}

// User is the sender of a document email.
type User struct {
	ID          string  `json:"id"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	Email       *string `json:"email,omitempty"`
	CompanyName *string `json:"companyName,omitempty"`
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// SignatureCompany is the company name, or the user's name when none is set.
func (u User) SignatureCompany() string {
	if u.CompanyName != nil && *u.CompanyName != "" {
		return *u.CompanyName
	}
	return u.FullName()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
