package gst

import "github.com/shopspring/decimal"

// SummaryLine is one priced line as seen by the aggregator.
type SummaryLine struct {
	Code     string
	Taxable  decimal.Decimal
	CGSTRate decimal.Decimal
	CGST     decimal.Decimal
	SGSTRate decimal.Decimal
	SGST     decimal.Decimal
	IGSTRate decimal.Decimal
	IGST     decimal.Decimal
}

// SummaryEntry is the per-HSN row of a statutory tax summary.
type SummaryEntry struct {
	Code         string          `json:"code"`
	TaxableValue decimal.Decimal `json:"taxable_value"`
	CGSTRate     decimal.Decimal `json:"cgst_rate"`
	CGSTAmount   decimal.Decimal `json:"cgst_amount"`
	SGSTRate     decimal.Decimal `json:"sgst_rate"`
	SGSTAmount   decimal.Decimal `json:"sgst_amount"`
	IGSTRate     decimal.Decimal `json:"igst_rate"`
	IGSTAmount   decimal.Decimal `json:"igst_amount"`
	TotalTax     decimal.Decimal `json:"total_tax"`
}

// Summarize groups lines by classification code. Entries keep the order in
// which each code first appears.
func Summarize(lines []SummaryLine) []SummaryEntry {
	index := make(map[string]int, len(lines))
	entries := make([]SummaryEntry, 0, len(lines))
	for _, l := range lines {
		i, ok := index[l.Code]
		if !ok {
			i = len(entries)
			index[l.Code] = i
			entries = append(entries, SummaryEntry{
				Code:         l.Code,
				TaxableValue: decimal.Zero,
				CGSTRate:     decimal.Zero,
				CGSTAmount:   decimal.Zero,
				SGSTRate:     decimal.Zero,
				SGSTAmount:   decimal.Zero,
				IGSTRate:     decimal.Zero,
				IGSTAmount:   decimal.Zero,
				TotalTax:     decimal.Zero,
			})
		}
		e := &entries[i]
		e.TaxableValue = e.TaxableValue.Add(l.Taxable)
		e.CGSTAmount = e.CGSTAmount.Add(l.CGST)
		e.SGSTAmount = e.SGSTAmount.Add(l.SGST)
		e.IGSTAmount = e.IGSTAmount.Add(l.IGST)
		e.TotalTax = e.TotalTax.Add(l.CGST).Add(l.SGST).Add(l.IGST)
		if e.CGSTRate.IsZero() {
			e.CGSTRate = l.CGSTRate
		}
		if e.SGSTRate.IsZero() {
			e.SGSTRate = l.SGSTRate
		}
		if e.IGSTRate.IsZero() {
			e.IGSTRate = l.IGSTRate
		}
	}
	return entries
}

// SummaryTotal is the ungrouped sum over a summary or a set of lines.
type SummaryTotal struct {
	TaxableValue decimal.Decimal `json:"taxable_value"`
	CGSTAmount   decimal.Decimal `json:"cgst_amount"`
	SGSTAmount   decimal.Decimal `json:"sgst_amount"`
	IGSTAmount   decimal.Decimal `json:"igst_amount"`
	TotalTax     decimal.Decimal `json:"total_tax"`
}

// SummaryTotals sums every entry of a summary.
func SummaryTotals(entries []SummaryEntry) SummaryTotal {
	t := newSummaryTotal()
	for _, e := range entries {
		t.TaxableValue = t.TaxableValue.Add(e.TaxableValue)
		t.CGSTAmount = t.CGSTAmount.Add(e.CGSTAmount)
		t.SGSTAmount = t.SGSTAmount.Add(e.SGSTAmount)
		t.IGSTAmount = t.IGSTAmount.Add(e.IGSTAmount)
		t.TotalTax = t.TotalTax.Add(e.TotalTax)
	}
	return t
}

// LineTotals sums lines without grouping.
func LineTotals(lines []SummaryLine) SummaryTotal {
	t := newSummaryTotal()
	for _, l := range lines {
		t.TaxableValue = t.TaxableValue.Add(l.Taxable)
		t.CGSTAmount = t.CGSTAmount.Add(l.CGST)
		t.SGSTAmount = t.SGSTAmount.Add(l.SGST)
		t.IGSTAmount = t.IGSTAmount.Add(l.IGST)
		t.TotalTax = t.TotalTax.Add(l.CGST).Add(l.SGST).Add(l.IGST)
	}
	return t
}

func newSummaryTotal() SummaryTotal {
	return SummaryTotal{
		TaxableValue: decimal.Zero,
		CGSTAmount:   decimal.Zero,
		SGSTAmount:   decimal.Zero,
		IGSTAmount:   decimal.Zero,
		TotalTax:     decimal.Zero,
	}
}
