// Package invoicing creates GST invoices and aggregates their tax by
// classification code.
package invoicing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/recon/internal/gst"
	"github.com/odyssey-erp/recon/internal/numbering"
)

var (
	// ErrInvoiceNotFound is returned for an unknown invoice.
	ErrInvoiceNotFound = errors.New("invoicing: invoice not found")
	// ErrInvalidTransition is returned when a lifecycle change is not allowed.
	ErrInvalidTransition = errors.New("invoicing: invalid status transition")
	// ErrPartyNotFound is returned when the buyer or seller id is unknown.
	ErrPartyNotFound = errors.New("invoicing: party not found")
	// ErrProductNotFound is returned when a line references an unknown product.
	ErrProductNotFound = errors.New("invoicing: product not found")
	// ErrDuplicateInvoiceNumber is shared with numbering so both paths map alike.
	ErrDuplicateInvoiceNumber = numbering.ErrDuplicateInvoiceNumber
)

var domainErrors = []error{
	ErrInvoiceNotFound, ErrInvalidTransition, ErrPartyNotFound, ErrProductNotFound,
	ErrDuplicateInvoiceNumber, gst.ErrMissingTaxJurisdiction, gst.ErrMixedTaxPattern,
}

// DefaultSeries names the series invoice numbers are issued from.
const DefaultSeries = "INV"

// Audit actions.
const (
	AuditActionCreated   = "invoice.created"
	AuditActionSubmitted = "invoice.submitted"
	AuditActionCancelled = "invoice.cancelled"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusCancelled:
		return true
	}
	return false
}

// CanSubmit reports whether the invoice may be submitted.
func (s Status) CanSubmit() bool {
	return s == StatusDraft
}

// CanCancel reports whether the invoice may be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusDraft || s == StatusSubmitted
}

// Party is master data of a buyer or seller.
type Party struct {
	ID      int64  `json:"id"`
	Address string `json:"address,omitempty"`
	gst.PartyTaxProfile
}

// Product is the tax master data of a product.
type Product struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	HSNCode string          `json:"hsn_code"`
	Unit    string          `json:"unit"`
	TaxRate decimal.Decimal `json:"tax_rate"`
}

// LineInput is one requested invoice line. TaxRate is used only when the
// product carries no nominal rate.
type LineInput struct {
	ProductID       int64            `json:"product_id" validate:"required,gt=0"`
	Description     string           `json:"description" validate:"max=500"`
	Quantity        decimal.Decimal  `json:"quantity"`
	Rate            decimal.Decimal  `json:"rate"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	TaxRate         *decimal.Decimal `json:"tax_rate,omitempty"`
}

// CreateInput is the invoice entry payload. Buyer and Seller profiles take
// precedence over the ids; a missing seller falls back to the configured one.
type CreateInput struct {
	Number      string               `json:"number" validate:"max=64"`
	Series      string               `json:"series" validate:"max=50"`
	InvoiceDate time.Time            `json:"invoice_date"`
	BuyerID     int64                `json:"buyer_id" validate:"gte=0"`
	Buyer       *gst.PartyTaxProfile `json:"buyer,omitempty"`
	SellerID    int64                `json:"seller_id" validate:"gte=0"`
	Seller      *gst.PartyTaxProfile `json:"seller,omitempty"`
	Actor       string               `json:"-"`
	Lines       []LineInput          `json:"lines" validate:"required,min=1,max=200,dive"`
}

// Line is a priced invoice line.
type Line struct {
	LineNo          int             `json:"line_no"`
	ProductID       int64           `json:"product_id"`
	Description     string          `json:"description"`
	Code            string          `json:"hsn_code"`
	Unit            string          `json:"unit"`
	Quantity        decimal.Decimal `json:"quantity"`
	Rate            decimal.Decimal `json:"rate"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	gst.LineAmounts
}

// SummaryLine feeds the line into the tax aggregator.
func (l Line) SummaryLine() gst.SummaryLine {
	return l.ForSummary(l.Code)
}

// Invoice is a priced GST invoice.
type Invoice struct {
	ID             int64               `json:"id"`
	Number         string              `json:"number"`
	Series         string              `json:"series,omitempty"`
	InvoiceDate    time.Time           `json:"invoice_date"`
	BuyerID        int64               `json:"buyer_id,omitempty"`
	Buyer          gst.PartyTaxProfile `json:"buyer"`
	Seller         gst.PartyTaxProfile `json:"seller"`
	Classification gst.Classification  `json:"classification"`
	gst.InvoiceTotals
	Status    Status    `json:"status"`
	Lines     []Line    `json:"lines"`
	CreatedAt time.Time `json:"created_at"`
}

// SummaryLines returns the aggregator input of every line.
func (inv Invoice) SummaryLines() []gst.SummaryLine {
	out := make([]gst.SummaryLine, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		out = append(out, l.SummaryLine())
	}
	return out
}

// TaxSummaryQuery selects invoices either by id or by invoice date range.
type TaxSummaryQuery struct {
	InvoiceIDs []int64   `json:"invoice_ids"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
}

// TaxSummary is the grouped tax of the selected invoices.
type TaxSummary struct {
	Entries []gst.SummaryEntry `json:"entries"`
	Totals  gst.SummaryTotal   `json:"totals"`
}
