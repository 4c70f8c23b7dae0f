// Package fulfilment keeps the order-to-invoice ledger: how much of each
// sales order has been invoiced and what is still pending.
package fulfilment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrOverInvoicing is returned when a link would exceed the pending quantity.
	ErrOverInvoicing = errors.New("fulfilment: quantity exceeds pending order quantity")
	// ErrOrderNotFound is returned for an unknown sales order.
	ErrOrderNotFound = errors.New("fulfilment: sales order not found")
	// ErrOrderCancelled is returned when writing links against a cancelled order.
	ErrOrderCancelled = errors.New("fulfilment: sales order cancelled")
	// ErrOrderHasLinks is returned when cancelling an order that is already invoiced.
	ErrOrderHasLinks = errors.New("fulfilment: sales order has invoice links")
	// ErrInvoiceNotFound is returned when linking an unknown invoice.
	ErrInvoiceNotFound = errors.New("fulfilment: invoice not found")
	// ErrInvoiceCancelled is returned when linking a cancelled invoice.
	ErrInvoiceCancelled = errors.New("fulfilment: invoice cancelled")
	// ErrLinkNotFound is returned when removing a link that does not exist.
	ErrLinkNotFound = errors.New("fulfilment: invoice link not found")
	// ErrDuplicateOrderNumber is returned when an order number is taken.
	ErrDuplicateOrderNumber = errors.New("fulfilment: duplicate order number")
)

var domainErrors = []error{
	ErrOverInvoicing, ErrOrderNotFound, ErrOrderCancelled, ErrOrderHasLinks,
	ErrInvoiceNotFound, ErrInvoiceCancelled, ErrLinkNotFound, ErrDuplicateOrderNumber,
}

// Epsilon is the tolerance under which an order counts as fully invoiced.
var Epsilon = decimal.New(1, -4)

// OrderStatus is the fulfilment state of a sales order.
type OrderStatus string

const (
	StatusPending           OrderStatus = "PENDING"
	StatusPartiallyInvoiced OrderStatus = "PARTIALLY_INVOICED"
	StatusFullyInvoiced     OrderStatus = "FULLY_INVOICED"
	StatusCancelled         OrderStatus = "CANCELLED"
)

// IsValid checks if the status is valid.
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPartiallyInvoiced, StatusFullyInvoiced, StatusCancelled:
		return true
	}
	return false
}

// CanLink reports whether invoice links may still be written.
func (s OrderStatus) CanLink() bool {
	return s != StatusCancelled
}

// CanCancel reports whether the order may be cancelled. Link presence is
// checked separately.
func (s OrderStatus) CanCancel() bool {
	return s == StatusPending
}

// DeriveStatus computes the status implied by the linked quantity.
func DeriveStatus(ordered, linked decimal.Decimal) OrderStatus {
	switch {
	case !linked.IsPositive():
		return StatusPending
	case ordered.Sub(linked).LessThanOrEqual(Epsilon):
		return StatusFullyInvoiced
	default:
		return StatusPartiallyInvoiced
	}
}

// Pending returns ordered − linked, floored at zero.
func Pending(ordered, linked decimal.Decimal) decimal.Decimal {
	p := ordered.Sub(linked)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// SalesOrder is the fulfilment view of a sales order. Quantity never changes
// after creation.
type SalesOrder struct {
	ID          int64           `json:"id"`
	OrderNumber string          `json:"order_number"`
	BuyerID     int64           `json:"buyer_id"`
	BuyerName   string          `json:"buyer_name"`
	ProductID   int64           `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	Rate        decimal.Decimal `json:"rate"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Link is the quantity of one order covered by one invoice.
type Link struct {
	OrderID       int64           `json:"order_id"`
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Quantity      decimal.Decimal `json:"quantity"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OrderDetail is an order with its ordered list of links.
type OrderDetail struct {
	SalesOrder
	Links           []Link          `json:"links"`
	LinkedQuantity  decimal.Decimal `json:"linked_quantity"`
	PendingQuantity decimal.Decimal `json:"pending_quantity"`
}

// LinkResult is the ledger state of an order after a link write.
type LinkResult struct {
	OrderID         int64           `json:"order_id"`
	InvoiceID       int64           `json:"invoice_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	LinkedQuantity  decimal.Decimal `json:"linked_quantity"`
	PendingQuantity decimal.Decimal `json:"pending_quantity"`
	Status          OrderStatus     `json:"status"`
}

// CreateOrderInput is the order entry payload.
type CreateOrderInput struct {
	OrderNumber string          `json:"order_number" validate:"max=64"`
	BuyerID     int64           `json:"buyer_id" validate:"required,gt=0"`
	BuyerName   string          `json:"buyer_name" validate:"required,max=200"`
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit" validate:"required,max=20"`
	Rate        decimal.Decimal `json:"rate"`
}

// LinkInput is the payload of a link write.
type LinkInput struct {
	InvoiceID int64           `json:"invoice_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}
