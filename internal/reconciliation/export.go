package reconciliation

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{
	"Order Number", "Order Date", "Buyer", "Status", "Unit", "Invoice Numbers",
	"Ordered Qty", "Invoiced Qty", "Pending Qty", "Ordered Amount", "Invoiced Amount",
}

// WritePendingCSV streams the report rows as CSV.
func WritePendingCSV(w io.Writer, report Report) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range report.Rows {
		if err := writer.Write([]string{
			r.OrderNumber,
			formatDate(r.OrderDate),
			r.BuyerName,
			string(r.Status),
			r.Unit,
			r.InvoiceNumbersDisplay(),
			r.OrderedQty.String(),
			r.InvoicedQty.String(),
			r.PendingQty.String(),
			r.OrderedAmount.StringFixed(2),
			r.InvoicedAmount.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

const sheetName = "Pending Orders"

// WritePendingXLSX writes the report as a single-sheet workbook with a totals
// row at the bottom.
func WritePendingXLSX(w io.Writer, report Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return err
	}

	for i, r := range report.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			r.OrderNumber,
			formatDate(r.OrderDate),
			r.BuyerName,
			string(r.Status),
			r.Unit,
			r.InvoiceNumbersDisplay(),
			r.OrderedQty.InexactFloat64(),
			r.InvoicedQty.InexactFloat64(),
			r.PendingQty.InexactFloat64(),
			r.OrderedAmount.InexactFloat64(),
			r.InvoicedAmount.InexactFloat64(),
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}

	totalsRow := len(report.Rows) + 2
	cell, err := excelize.CoordinatesToCellName(1, totalsRow)
	if err != nil {
		return err
	}
	totals := []any{
		"Total", "", strconv.Itoa(report.Totals.Orders) + " orders", "", "", "", "", "", "",
		report.Totals.OrderedAmount.InexactFloat64(),
		report.Totals.InvoicedAmount.InexactFloat64(),
	}
	if err := f.SetSheetRow(sheetName, cell, &totals); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheetName, totalsRow, totalsRow, bold); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
