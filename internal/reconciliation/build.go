package reconciliation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/recon/internal/fulfilment"
)

// Build joins orders with their links into report rows. Cancelled orders and
// links of cancelled invoices are left out. Rows follow the order slice;
// invoice numbers are distinct and sorted by invoice date then id.
func Build(orders []OrderSnapshot, links []LinkSnapshot) []Row {
	byOrder := make(map[int64][]LinkSnapshot, len(orders))
	for _, l := range links {
		if l.InvoiceStatus == invoiceStatusCancelled {
			continue
		}
		byOrder[l.OrderID] = append(byOrder[l.OrderID], l)
	}

	rows := make([]Row, 0, len(orders))
	for _, o := range orders {
		if o.Status == fulfilment.StatusCancelled {
			continue
		}
		ls := byOrder[o.OrderID]
		sort.SliceStable(ls, func(i, j int) bool {
			if !ls[i].InvoiceDate.Equal(ls[j].InvoiceDate) {
				return ls[i].InvoiceDate.Before(ls[j].InvoiceDate)
			}
			return ls[i].InvoiceID < ls[j].InvoiceID
		})

		invoiced := decimal.Zero
		amount := decimal.Zero
		numbers := make([]string, 0, len(ls))
		seen := make(map[int64]bool, len(ls))
		for _, l := range ls {
			invoiced = invoiced.Add(l.Quantity)
			amount = amount.Add(l.Quantity.Mul(l.UnitValue()))
			if !seen[l.InvoiceID] {
				seen[l.InvoiceID] = true
				numbers = append(numbers, l.InvoiceNumber)
			}
		}

		rows = append(rows, Row{
			OrderID:        o.OrderID,
			OrderNumber:    o.OrderNumber,
			OrderDate:      o.OrderDate,
			BuyerID:        o.BuyerID,
			BuyerName:      o.BuyerName,
			Status:         o.Status,
			Unit:           o.Unit,
			InvoiceNumbers: numbers,
			OrderedQty:     o.Quantity,
			InvoicedQty:    invoiced,
			PendingQty:     fulfilment.Pending(o.Quantity, invoiced),
			OrderedAmount:  o.TotalAmount.Round(2),
			InvoicedAmount: amount.Round(2),
		})
	}
	return rows
}

// Apply keeps the rows matching the in-memory parts of f: status and the
// pending-only switch.
func Apply(rows []Row, f Filter) []Row {
	if f.Status == "" && !f.OnlyPending {
		return rows
	}
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.OnlyPending && !r.PendingQty.IsPositive() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Sum totals the amount columns of rows.
func Sum(rows []Row) Totals {
	t := Totals{
		Orders:         len(rows),
		OrderedAmount:  decimal.Zero,
		InvoicedAmount: decimal.Zero,
		PendingAmount:  decimal.Zero,
	}
	for _, r := range rows {
		t.OrderedAmount = t.OrderedAmount.Add(r.OrderedAmount)
		t.InvoicedAmount = t.InvoicedAmount.Add(r.InvoicedAmount)
	}
	t.PendingAmount = t.OrderedAmount.Sub(t.InvoicedAmount)
	if t.PendingAmount.IsNegative() {
		t.PendingAmount = decimal.Zero
	}
	return t
}
