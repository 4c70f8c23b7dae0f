package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/recon/internal/gst"
	"github.com/odyssey-erp/recon/internal/invoicing"
)

//go:embed templates/invoice.html
var templates embed.FS

// HTMLRenderer converts HTML into PDF bytes.
type HTMLRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// InvoiceDocument is the data bound to the invoice template.
type InvoiceDocument struct {
	Invoice       invoicing.Invoice
	Summary       []gst.SummaryEntry
	Intra         bool
	AmountInWords string
}

// InvoiceRenderer renders tax invoices to PDF.
type InvoiceRenderer struct {
	html    HTMLRenderer
	tpl     *template.Template
	printer *message.Printer
}

// NewInvoiceRenderer parses the invoice template. Amounts are grouped the
// Indian way (lakh, crore).
func NewInvoiceRenderer(html HTMLRenderer) (*InvoiceRenderer, error) {
	r := &InvoiceRenderer{
		html:    html,
		printer: message.NewPrinter(language.MustParse("en-IN")),
	}
	funcMap := template.FuncMap{
		"money": r.Money,
		"qty": func(d decimal.Decimal) string {
			return d.String()
		},
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
	}
	tpl, err := template.New("invoice.html").Funcs(funcMap).ParseFS(templates, "templates/invoice.html")
	if err != nil {
		return nil, fmt.Errorf("parse invoice template: %w", err)
	}
	r.tpl = tpl
	return r, nil
}

// Money formats d with two decimals and en-IN digit grouping.
func (r *InvoiceRenderer) Money(d decimal.Decimal) string {
	return r.printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

// HTML renders the invoice document without converting it.
func (r *InvoiceRenderer) HTML(inv invoicing.Invoice, summary []gst.SummaryEntry) (string, error) {
	doc := InvoiceDocument{
		Invoice:       inv,
		Summary:       summary,
		Intra:         inv.Classification == gst.IntraState,
		AmountInWords: AmountInWords(inv.GrandTotal),
	}
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("execute invoice template: %w", err)
	}
	return buf.String(), nil
}

// RenderInvoice renders the invoice and converts it to PDF.
func (r *InvoiceRenderer) RenderInvoice(ctx context.Context, inv invoicing.Invoice, summary []gst.SummaryEntry) ([]byte, error) {
	html, err := r.HTML(inv, summary)
	if err != nil {
		return nil, err
	}
	if r.html == nil {
		return nil, fmt.Errorf("pdf client not initialised")
	}
	pdf, err := r.html.RenderHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.Number, err)
	}
	return pdf, nil
}

var (
	ones = []string{
		"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine", "Ten",
		"Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen", "Seventeen", "Eighteen", "Nineteen",
	}
	tens = []string{"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety"}
)

// AmountInWords spells out a rupee amount using the Indian numbering
// system, e.g. "Rupees Twenty Eight Lakh Thirty Five Thousand Only".
func AmountInWords(amount decimal.Decimal) string {
	amount = amount.Abs().Round(2)
	rupees := amount.IntPart()
	paise := amount.Sub(decimal.NewFromInt(rupees)).Mul(decimal.NewFromInt(100)).IntPart()

	words := "Zero"
	if rupees > 0 {
		words = indianWords(rupees)
	}
	out := "Rupees " + words
	if paise > 0 {
		out += " and " + belowHundred(paise) + " Paise"
	}
	return out + " Only"
}

func indianWords(n int64) string {
	var parts []string
	if n >= 10000000 {
		parts = append(parts, indianWords(n/10000000), "Crore")
		n %= 10000000
	}
	for _, unit := range []struct {
		size int64
		name string
	}{{100000, "Lakh"}, {1000, "Thousand"}, {100, "Hundred"}} {
		if n >= unit.size {
			parts = append(parts, belowHundred(n/unit.size), unit.name)
			n %= unit.size
		}
	}
	if n > 0 {
		parts = append(parts, belowHundred(n))
	}
	return strings.Join(parts, " ")
}

func belowHundred(n int64) string {
	if n < 20 {
		return ones[n]
	}
	if n%10 == 0 {
		return tens[n/10]
	}
	return tens[n/10] + " " + ones[n%10]
}
