// internal/document/vat.go
package document

import (
	"fmt"

	"notification-workers/internal/models"

	"github.com/shopspring/decimal"
)

var vatPercentages = map[models.VatRate]decimal.Decimal{
	models.VatZero:         decimal.RequireFromString("0.0"),
	models.VatReducedTier1: decimal.RequireFromString("2.1"),
	models.VatReducedTier2: decimal.RequireFromString("5.5"),
	models.VatReducedTier3: decimal.RequireFromString("10.0"),
	models.VatStandard:     decimal.RequireFromString("20.0"),
}

// VatPercentage returns the exact percentage for a rate tag. Unknown tags
// are rejected, never defaulted.
func VatPercentage(rate models.VatRate) (decimal.Decimal, error) {
	pct, ok := vatPercentages[rate]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown vat rate %q", rate)
	}
	return pct, nil
}
