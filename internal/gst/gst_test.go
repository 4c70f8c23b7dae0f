package gst

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/recon/internal/shared"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

var (
	assamSeller = PartyTaxProfile{Name: "Brahmaputra Steels", GSTIN: "18AABCB1234C1Z5"}
	assamBuyer  = PartyTaxProfile{Name: "Guwahati Traders", StateCode: "18"}
	mumbaiBuyer = PartyTaxProfile{Name: "Konkan Infra", GSTIN: "27AAPFU0939F1ZV"}
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		seller PartyTaxProfile
		buyer  PartyTaxProfile
		want   Classification
	}{
		{"same state via code and gstin", assamSeller, assamBuyer, IntraState},
		{"different states", assamSeller, mumbaiBuyer, InterState},
		{"explicit codes only", PartyTaxProfile{StateCode: "07"}, PartyTaxProfile{StateCode: "07"}, IntraState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.seller, tt.buyer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyMissingBuyerStateIsNeverIntraState(t *testing.T) {
	_, err := Classify(assamSeller, PartyTaxProfile{Name: "Walk-in"})
	assert.ErrorIs(t, err, ErrMissingTaxJurisdiction)

	_, err = ClassifyCodes("18", "")
	assert.ErrorIs(t, err, ErrMissingTaxJurisdiction)
	_, err = ClassifyCodes("", "18")
	assert.ErrorIs(t, err, ErrMissingTaxJurisdiction)
}

func TestClassifyRejectsMalformedIdentifiers(t *testing.T) {
	tests := []struct {
		name  string
		buyer PartyTaxProfile
		field string
	}{
		{"gstin shorter than two characters", PartyTaxProfile{GSTIN: "1"}, "buyer.gstin"},
		{"non numeric prefix", PartyTaxProfile{GSTIN: "AB12345"}, "buyer.gstin"},
		{"unknown state", PartyTaxProfile{StateCode: "55"}, "buyer.state_code"},
		{"code disagrees with gstin", PartyTaxProfile{StateCode: "18", GSTIN: "27AAPFU0939F1ZV"}, "buyer.state_code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(assamSeller, tt.buyer)
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrValidation))
			assert.Equal(t, tt.field, shared.FieldOf(err))
		})
	}
}

func TestStateCodeFromGSTIN(t *testing.T) {
	code, err := StateCodeFromGSTIN(" 33AAACT2727Q1ZW ")
	require.NoError(t, err)
	assert.Equal(t, "33", code)
	assert.Equal(t, "Tamil Nadu", StateName(code))

	_, err = StateCodeFromGSTIN("")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCalculateLineIntraState(t *testing.T) {
	// 60 MT at 45,000 with 5% GST inside Assam.
	got, err := CalculateLine(LineInput{
		Quantity:        d("60"),
		Rate:            d("45000"),
		DiscountPercent: decimal.Zero,
		TaxRate:         d("5"),
	}, IntraState)
	require.NoError(t, err)

	assertDecimal(t, "2700000", got.Taxable)
	assertDecimal(t, "2.5", got.CGSTRate)
	assertDecimal(t, "2.5", got.SGSTRate)
	assertDecimal(t, "67500", got.CGST)
	assertDecimal(t, "67500", got.SGST)
	assertDecimal(t, "0", got.IGST)
	assertDecimal(t, "2835000", got.Total)
}

func TestCalculateLineInterState(t *testing.T) {
	got, err := CalculateLine(LineInput{
		Quantity:        d("1"),
		Rate:            d("100000"),
		DiscountPercent: decimal.Zero,
		TaxRate:         d("18"),
	}, InterState)
	require.NoError(t, err)

	assertDecimal(t, "18", got.IGSTRate)
	assertDecimal(t, "18000", got.IGST)
	assertDecimal(t, "0", got.CGST)
	assertDecimal(t, "0", got.SGST)
	assertDecimal(t, "118000", got.Total)
}

func TestCalculateLineWithDiscountRoundsPublishedAmounts(t *testing.T) {
	got, err := CalculateLine(LineInput{
		Quantity:        d("3"),
		Rate:            d("199.99"),
		DiscountPercent: d("12.5"),
		TaxRate:         d("18"),
	}, IntraState)
	require.NoError(t, err)

	assertDecimal(t, "599.97", got.Gross)
	assertDecimal(t, "75.00", got.Discount)
	assertDecimal(t, "524.97", got.Taxable)
	assertDecimal(t, "47.25", got.CGST)
	assertDecimal(t, "47.25", got.SGST)
	assertDecimal(t, "619.47", got.Total)
}

func TestCalculateLineValidation(t *testing.T) {
	base := LineInput{Quantity: d("1"), Rate: d("10"), DiscountPercent: decimal.Zero, TaxRate: d("5")}
	tests := []struct {
		name  string
		tweak func(*LineInput)
		field string
	}{
		{"zero quantity", func(in *LineInput) { in.Quantity = decimal.Zero }, "quantity"},
		{"negative quantity", func(in *LineInput) { in.Quantity = d("-2") }, "quantity"},
		{"negative rate", func(in *LineInput) { in.Rate = d("-0.01") }, "rate"},
		{"discount above 100", func(in *LineInput) { in.DiscountPercent = d("100.5") }, "discount_percent"},
		{"negative tax rate", func(in *LineInput) { in.TaxRate = d("-5") }, "tax_rate"},
		{"tax rate above 100", func(in *LineInput) { in.TaxRate = d("100.5") }, "tax_rate"},
		{"quantity finer than stored", func(in *LineInput) { in.Quantity = d("1.0000001") }, "quantity"},
		{"price finer than stored", func(in *LineInput) { in.Rate = d("10.00005") }, "rate"},
		{"discount finer than stored", func(in *LineInput) { in.DiscountPercent = d("2.00001") }, "discount_percent"},
		{"tax rate whose half is finer than stored", func(in *LineInput) { in.TaxRate = d("0.1255") }, "tax_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.tweak(&in)
			_, err := CalculateLine(in, IntraState)
			require.ErrorIs(t, err, shared.ErrValidation)
			assert.Equal(t, tt.field, shared.FieldOf(err))
		})
	}

	_, err := CalculateLine(base, Classification("GUESS"))
	assert.ErrorIs(t, err, ErrMissingTaxJurisdiction)
}

func TestCalculateLineHalfRateFitsStoredScale(t *testing.T) {
	out, err := CalculateLine(LineInput{Quantity: d("1000"), Rate: d("100"), DiscountPercent: decimal.Zero, TaxRate: d("0.25")}, IntraState)
	require.NoError(t, err)
	assert.True(t, d("0.125").Equal(out.CGSTRate))
	assert.True(t, out.CGSTRate.Equal(out.CGSTRate.Truncate(shared.PercentPlaces)))
	assert.True(t, d("125").Equal(out.CGST))

	out, err = CalculateLine(LineInput{Quantity: d("1"), Rate: d("1000"), DiscountPercent: decimal.Zero, TaxRate: d("0.125")}, IntraState)
	require.NoError(t, err)
	assert.True(t, d("0.0625").Equal(out.CGSTRate))
}

func TestTotalsRoundOffKeepsSign(t *testing.T) {
	down, err := CalculateLine(LineInput{Quantity: d("3"), Rate: d("199.99"), DiscountPercent: d("12.5"), TaxRate: d("18")}, IntraState)
	require.NoError(t, err)
	totals := Totals([]LineAmounts{down})
	assertDecimal(t, "619.47", totals.Total)
	assertDecimal(t, "619", totals.GrandTotal)
	assertDecimal(t, "-0.47", totals.RoundOff)

	up, err := CalculateLine(LineInput{Quantity: d("1"), Rate: d("10.30"), DiscountPercent: decimal.Zero, TaxRate: d("5")}, IntraState)
	require.NoError(t, err)
	totals = Totals([]LineAmounts{up})
	assertDecimal(t, "10.82", totals.Total)
	assertDecimal(t, "0.18", totals.RoundOff)
	assertDecimal(t, "11", totals.GrandTotal)
}

func TestTotalsAreAdditive(t *testing.T) {
	inputs := []LineInput{
		{Quantity: d("12.5"), Rate: d("333.33"), DiscountPercent: d("3"), TaxRate: d("12")},
		{Quantity: d("7"), Rate: d("19.99"), DiscountPercent: d("0"), TaxRate: d("28")},
		{Quantity: d("0.333"), Rate: d("1250"), DiscountPercent: d("7.5"), TaxRate: d("5")},
		{Quantity: d("1000"), Rate: d("0.07"), DiscountPercent: d("1"), TaxRate: d("0")},
	}
	for _, class := range []Classification{IntraState, InterState} {
		var lines []LineAmounts
		lineSum := decimal.Zero
		for _, in := range inputs {
			l, err := CalculateLine(in, class)
			require.NoError(t, err)
			lines = append(lines, l)
			lineSum = lineSum.Add(l.Total)
		}
		totals := Totals(lines)

		assertDecimal(t, lineSum.String(), totals.Subtotal.Add(totals.CGST).Add(totals.SGST).Add(totals.IGST), class)
		assertDecimal(t, totals.GrandTotal.String(), totals.Total.Add(totals.RoundOff), class)
		assert.True(t, totals.RoundOff.Abs().LessThanOrEqual(d("0.5")), class)
		require.NoError(t, CheckMutualExclusivity(lines))
		if class == IntraState {
			assert.True(t, totals.IGST.IsZero())
		} else {
			assert.True(t, totals.CGST.IsZero() && totals.SGST.IsZero())
		}
	}
}

func TestCheckMutualExclusivityRejectsMix(t *testing.T) {
	intra, err := CalculateLine(LineInput{Quantity: d("1"), Rate: d("100"), DiscountPercent: decimal.Zero, TaxRate: d("18")}, IntraState)
	require.NoError(t, err)
	inter, err := CalculateLine(LineInput{Quantity: d("1"), Rate: d("100"), DiscountPercent: decimal.Zero, TaxRate: d("18")}, InterState)
	require.NoError(t, err)

	assert.ErrorIs(t, CheckMutualExclusivity([]LineAmounts{intra, inter}), ErrMixedTaxPattern)
}

func TestSummarizeGroupsByFirstAppearance(t *testing.T) {
	priced := func(qty, rate, tax string, class Classification) LineAmounts {
		l, err := CalculateLine(LineInput{Quantity: d(qty), Rate: d(rate), DiscountPercent: decimal.Zero, TaxRate: d(tax)}, class)
		require.NoError(t, err)
		return l
	}
	lines := []SummaryLine{
		priced("10", "500", "18", IntraState).ForSummary("7214"),
		priced("4", "250", "5", IntraState).ForSummary("1006"),
		priced("2", "500", "18", IntraState).ForSummary("7214"),
		priced("1", "1000", "12", InterState).ForSummary("0902"),
	}

	entries := Summarize(lines)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"7214", "1006", "0902"}, []string{entries[0].Code, entries[1].Code, entries[2].Code})

	steel := entries[0]
	assertDecimal(t, "6000", steel.TaxableValue)
	assertDecimal(t, "9", steel.CGSTRate)
	assertDecimal(t, "540", steel.CGSTAmount)
	assertDecimal(t, "540", steel.SGSTAmount)
	assertDecimal(t, "1080", steel.TotalTax)

	tea := entries[2]
	assertDecimal(t, "12", tea.IGSTRate)
	assertDecimal(t, "120", tea.IGSTAmount)
	assertDecimal(t, "0", tea.CGSTAmount)
}

func TestSummarizeRoundTripsTotals(t *testing.T) {
	var lines []SummaryLine
	codes := []string{"7214", "", "1006", "7214", "2523", "1006"}
	for i, code := range codes {
		class := IntraState
		if i%2 == 1 {
			class = InterState
		}
		l, err := CalculateLine(LineInput{
			Quantity:        decimal.NewFromInt(int64(i + 1)),
			Rate:            d("123.45"),
			DiscountPercent: d("2.5"),
			TaxRate:         d("18"),
		}, class)
		require.NoError(t, err)
		lines = append(lines, l.ForSummary(code))
	}

	grouped := SummaryTotals(Summarize(lines))
	flat := LineTotals(lines)

	assertDecimal(t, flat.TaxableValue.String(), grouped.TaxableValue)
	assertDecimal(t, flat.CGSTAmount.String(), grouped.CGSTAmount)
	assertDecimal(t, flat.SGSTAmount.String(), grouped.SGSTAmount)
	assertDecimal(t, flat.IGSTAmount.String(), grouped.IGSTAmount)
	assertDecimal(t, flat.TotalTax.String(), grouped.TotalTax)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Empty(t, Summarize(nil))
	assertDecimal(t, "0", SummaryTotals(nil).TotalTax)
}
