package invoicing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/recon/internal/gst"
)

// Computation is the priced result of a set of invoice lines.
type Computation struct {
	Classification gst.Classification
	Lines          []Line
	Totals         gst.InvoiceTotals
}

// Compute classifies the supply and prices every line. It has no side effects:
// the same input always yields the same amounts.
func Compute(seller, buyer gst.PartyTaxProfile, lines []Line) (Computation, error) {
	class, err := gst.Classify(seller, buyer)
	if err != nil {
		return Computation{}, err
	}

	priced := make([]Line, len(lines))
	amounts := make([]gst.LineAmounts, len(lines))
	for i, l := range lines {
		a, err := gst.CalculateLine(gst.LineInput{
			Quantity:        l.Quantity,
			Rate:            l.Rate,
			DiscountPercent: l.DiscountPercent,
			TaxRate:         l.TaxRate,
		}, class)
		if err != nil {
			return Computation{}, prefixField(err, fmt.Sprintf("lines[%d]", i))
		}
		l.LineNo = i + 1
		l.LineAmounts = a
		priced[i] = l
		amounts[i] = a
	}
	if err := gst.CheckMutualExclusivity(amounts); err != nil {
		return Computation{}, err
	}
	return Computation{
		Classification: class,
		Lines:          priced,
		Totals:         gst.Totals(amounts),
	}, nil
}

// Apply copies the computed amounts onto inv.
func (c Computation) Apply(inv *Invoice) {
	inv.Classification = c.Classification
	inv.Lines = c.Lines
	inv.InvoiceTotals = c.Totals
}

// resolveTaxRate prefers the catalogue rate; a line rate fills in only when
// the product has none.
func resolveTaxRate(product Product, requested *decimal.Decimal) decimal.Decimal {
	if product.TaxRate.IsPositive() || requested == nil {
		return product.TaxRate
	}
	return *requested
}
