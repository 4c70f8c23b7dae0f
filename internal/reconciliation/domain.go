// Package reconciliation builds the pending-orders report: every open sales
// order with the invoices covering it and what is still to be invoiced.
package reconciliation

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/recon/internal/fulfilment"
	"github.com/odyssey-erp/recon/internal/shared"
)

const invoiceStatusCancelled = "CANCELLED"

// OrderSnapshot is the order side of the report input.
type OrderSnapshot struct {
	OrderID     int64
	OrderNumber string
	OrderDate   time.Time
	BuyerID     int64
	BuyerName   string
	ProductID   int64
	Unit        string
	Quantity    decimal.Decimal
	TotalAmount decimal.Decimal
	Status      fulfilment.OrderStatus
}

// LinkSnapshot is one invoice link with the figures needed to value it.
// ProductTaxable and ProductQuantity cover the invoice lines of the order's
// product; InvoiceSubtotal and InvoiceQuantity cover the whole invoice.
type LinkSnapshot struct {
	OrderID         int64
	InvoiceID       int64
	InvoiceNumber   string
	InvoiceDate     time.Time
	InvoiceStatus   string
	Quantity        decimal.Decimal
	ProductTaxable  decimal.Decimal
	ProductQuantity decimal.Decimal
	InvoiceSubtotal decimal.Decimal
	InvoiceQuantity decimal.Decimal
}

// UnitValue is the taxable value of one unit of the order's product on the
// invoice, falling back to the invoice average when the product is absent.
func (l LinkSnapshot) UnitValue() decimal.Decimal {
	if l.ProductQuantity.IsPositive() {
		return l.ProductTaxable.Div(l.ProductQuantity)
	}
	if l.InvoiceQuantity.IsPositive() {
		return l.InvoiceSubtotal.Div(l.InvoiceQuantity)
	}
	return decimal.Zero
}

// Row is one line of the pending-orders report.
type Row struct {
	OrderID        int64                  `json:"order_id"`
	OrderNumber    string                 `json:"order_number"`
	OrderDate      time.Time              `json:"order_date"`
	BuyerID        int64                  `json:"buyer_id"`
	BuyerName      string                 `json:"buyer_name"`
	Status         fulfilment.OrderStatus `json:"status"`
	Unit           string                 `json:"unit"`
	InvoiceNumbers []string               `json:"invoice_numbers"`
	OrderedQty     decimal.Decimal        `json:"ordered_qty"`
	InvoicedQty    decimal.Decimal        `json:"invoiced_qty"`
	PendingQty     decimal.Decimal        `json:"pending_qty"`
	OrderedAmount  decimal.Decimal        `json:"ordered_amount"`
	InvoicedAmount decimal.Decimal        `json:"invoiced_amount"`
}

// InvoiceNumbersDisplay joins the invoice numbers for presentation.
func (r Row) InvoiceNumbersDisplay() string {
	return strings.Join(r.InvoiceNumbers, ", ")
}

// Totals sums the amount columns of a report.
type Totals struct {
	Orders         int             `json:"orders"`
	OrderedAmount  decimal.Decimal `json:"ordered_amount"`
	InvoicedAmount decimal.Decimal `json:"invoiced_amount"`
	PendingAmount  decimal.Decimal `json:"pending_amount"`
}

// Report is a built pending-orders report.
type Report struct {
	Rows        []Row     `json:"rows"`
	Totals      Totals    `json:"totals"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Filter narrows the report. Zero values select everything.
type Filter struct {
	BuyerID     int64                  `json:"buyer_id,omitempty"`
	Status      fulfilment.OrderStatus `json:"status,omitempty"`
	From        time.Time              `json:"from,omitempty"`
	To          time.Time              `json:"to,omitempty"`
	Search      string                 `json:"search,omitempty"`
	OnlyPending bool                   `json:"only_pending,omitempty"`
}

// Validate checks the filter.
func (f Filter) Validate() error {
	if f.BuyerID < 0 {
		return shared.Invalid("buyer_id", "must not be negative")
	}
	if f.Status != "" && (!f.Status.IsValid() || f.Status == fulfilment.StatusCancelled) {
		return shared.Invalid("status", "unsupported status %q", f.Status)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return shared.Invalid("to", "must not be before from")
	}
	if len(f.Search) > 100 {
		return shared.Invalid("search", "must be at most 100 characters")
	}
	return nil
}

// Key returns a stable cache key for the filter.
func (f Filter) Key() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(f.BuyerID, 10))
	b.WriteByte('|')
	b.WriteString(string(f.Status))
	b.WriteByte('|')
	if !f.From.IsZero() {
		b.WriteString(f.From.Format(time.DateOnly))
	}
	b.WriteByte('|')
	if !f.To.IsZero() {
		b.WriteString(f.To.Format(time.DateOnly))
	}
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(f.Search)))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(f.OnlyPending))
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}
