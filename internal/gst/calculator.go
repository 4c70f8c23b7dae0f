package gst

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/recon/internal/shared"
)

// ErrMixedTaxPattern flags an invoice carrying both CGST/SGST and IGST.
var ErrMixedTaxPattern = errors.New("gst: invoice mixes CGST/SGST with IGST")

// MoneyPlaces is the number of fraction digits kept on published amounts.
const MoneyPlaces = 2

// TaxRatePlaces is one place coarser than the stored rate scale so the
// intra-state half rate still fits it.
const TaxRatePlaces = shared.PercentPlaces - 1

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// LineInput is the raw pricing of one order or invoice line.
type LineInput struct {
	Quantity        decimal.Decimal
	Rate            decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxRate         decimal.Decimal
}

// LineAmounts holds the computed amounts of one line. Monetary fields are
// rounded to MoneyPlaces; Total is the sum of the rounded parts.
type LineAmounts struct {
	Classification Classification  `json:"classification"`
	Gross          decimal.Decimal `json:"gross"`
	Discount       decimal.Decimal `json:"discount"`
	Taxable        decimal.Decimal `json:"taxable"`
	CGSTRate       decimal.Decimal `json:"cgst_rate"`
	CGST           decimal.Decimal `json:"cgst"`
	SGSTRate       decimal.Decimal `json:"sgst_rate"`
	SGST           decimal.Decimal `json:"sgst"`
	IGSTRate       decimal.Decimal `json:"igst_rate"`
	IGST           decimal.Decimal `json:"igst"`
	Total          decimal.Decimal `json:"total"`
}

// Tax returns the sum of all GST heads on the line.
func (a LineAmounts) Tax() decimal.Decimal {
	return a.CGST.Add(a.SGST).Add(a.IGST)
}

// ForSummary converts the line into an aggregator input under code.
func (a LineAmounts) ForSummary(code string) SummaryLine {
	return SummaryLine{
		Code:     code,
		Taxable:  a.Taxable,
		CGSTRate: a.CGSTRate,
		CGST:     a.CGST,
		SGSTRate: a.SGSTRate,
		SGST:     a.SGST,
		IGSTRate: a.IGSTRate,
		IGST:     a.IGST,
	}
}

// Validate checks the ranges of a line input.
func (in LineInput) Validate() error {
	if !in.Quantity.IsPositive() {
		return shared.Invalid("quantity", "must be greater than zero, got %s", in.Quantity)
	}
	if in.Rate.IsNegative() {
		return shared.Invalid("rate", "must not be negative, got %s", in.Rate)
	}
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(hundred) {
		return shared.Invalid("discount_percent", "must be between 0 and 100, got %s", in.DiscountPercent)
	}
	if in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(hundred) {
		return shared.Invalid("tax_rate", "must be between 0 and 100, got %s", in.TaxRate)
	}
	if err := shared.CheckScale("quantity", in.Quantity, shared.QuantityPlaces); err != nil {
		return err
	}
	if err := shared.CheckScale("rate", in.Rate, shared.PricePlaces); err != nil {
		return err
	}
	if err := shared.CheckScale("discount_percent", in.DiscountPercent, shared.PercentPlaces); err != nil {
		return err
	}
	return shared.CheckScale("tax_rate", in.TaxRate, TaxRatePlaces)
}

// CalculateLine prices a line: gross, discount, taxable, then the GST heads
// selected by class.
func CalculateLine(in LineInput, class Classification) (LineAmounts, error) {
	if err := in.Validate(); err != nil {
		return LineAmounts{}, err
	}
	if !class.IsValid() {
		return LineAmounts{}, ErrMissingTaxJurisdiction
	}

	gross := in.Quantity.Mul(in.Rate)
	discount := gross.Mul(in.DiscountPercent).Div(hundred)
	taxable := gross.Sub(discount)

	out := LineAmounts{
		Classification: class,
		Gross:          gross.Round(MoneyPlaces),
		Discount:       discount.Round(MoneyPlaces),
		Taxable:        taxable.Round(MoneyPlaces),
		CGSTRate:       decimal.Zero,
		CGST:           decimal.Zero,
		SGSTRate:       decimal.Zero,
		SGST:           decimal.Zero,
		IGSTRate:       decimal.Zero,
		IGST:           decimal.Zero,
	}
	switch class {
	case IntraState:
		half := in.TaxRate.Div(two)
		out.CGSTRate = half
		out.SGSTRate = half
		out.CGST = taxable.Mul(half).Div(hundred).Round(MoneyPlaces)
		out.SGST = out.CGST
	case InterState:
		out.IGSTRate = in.TaxRate
		out.IGST = taxable.Mul(in.TaxRate).Div(hundred).Round(MoneyPlaces)
	}
	out.Total = out.Taxable.Add(out.CGST).Add(out.SGST).Add(out.IGST)
	return out, nil
}

// InvoiceTotals aggregates priced lines into invoice header amounts.
type InvoiceTotals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	CGST       decimal.Decimal `json:"cgst"`
	SGST       decimal.Decimal `json:"sgst"`
	IGST       decimal.Decimal `json:"igst"`
	Total      decimal.Decimal `json:"total"`
	RoundOff   decimal.Decimal `json:"round_off"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// Totals sums lines and rounds the invoice to whole rupees. RoundOff keeps
// its sign: GrandTotal == Total + RoundOff.
func Totals(lines []LineAmounts) InvoiceTotals {
	t := InvoiceTotals{
		Subtotal: decimal.Zero,
		CGST:     decimal.Zero,
		SGST:     decimal.Zero,
		IGST:     decimal.Zero,
		Total:    decimal.Zero,
	}
	for _, l := range lines {
		t.Subtotal = t.Subtotal.Add(l.Taxable)
		t.CGST = t.CGST.Add(l.CGST)
		t.SGST = t.SGST.Add(l.SGST)
		t.IGST = t.IGST.Add(l.IGST)
		t.Total = t.Total.Add(l.Total)
	}
	t.GrandTotal = t.Total.Round(0)
	t.RoundOff = t.GrandTotal.Sub(t.Total)
	return t
}

// CheckMutualExclusivity rejects a set of lines mixing CGST/SGST with IGST.
func CheckMutualExclusivity(lines []LineAmounts) error {
	var local, integrated bool
	for _, l := range lines {
		if !l.CGST.IsZero() || !l.SGST.IsZero() {
			local = true
		}
		if !l.IGST.IsZero() {
			integrated = true
		}
	}
	if local && integrated {
		return ErrMixedTaxPattern
	}
	return nil
}
