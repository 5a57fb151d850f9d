// internal/document/totals.go
package document

import (
	"fmt"

	"notification-workers/internal/models"

	"github.com/shopspring/decimal"
)

var minorUnit = decimal.New(1, -2)

// Line is a line item with its computed amounts.
type Line struct {
	models.LineItem
	VatPercent decimal.Decimal
	LineTotal  decimal.Decimal
	VatAmount  decimal.Decimal
}

// Totals are the document aggregates computed from its lines.
type Totals struct {
	Lines    []Line
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals derives line_total = quantity x unit price and the per-line
// VAT for every item. Sums are kept unrounded.
func ComputeTotals(items []models.LineItem) (*Totals, error) {
	totals := &Totals{
		Lines:    make([]Line, 0, len(items)),
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
	}

	for i, item := range items {
		pct, err := VatPercentage(item.VatRate)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		lineTotal := item.Quantity.Mul(item.UnitPriceExcludingTax)
		vat := lineTotal.Mul(pct.Shift(-2))

		totals.Lines = append(totals.Lines, Line{
			LineItem:   item,
			VatPercent: pct,
			LineTotal:  lineTotal,
			VatAmount:  vat,
		})
		totals.Subtotal = totals.Subtotal.Add(lineTotal)
		totals.Tax = totals.Tax.Add(vat)
	}

	totals.Total = totals.Subtotal.Add(totals.Tax)
	return totals, nil
}

// Matches reports whether the persisted grand total agrees with the computed
// one within one minor currency unit.
func (t *Totals) Matches(persistedTotal decimal.Decimal) bool {
	return t.Total.Sub(persistedTotal).Abs().LessThanOrEqual(minorUnit)
}
