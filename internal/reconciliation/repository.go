package reconciliation

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/recon/internal/fulfilment"
	"github.com/odyssey-erp/recon/internal/platform/db"
)

// Source loads the report input.
type Source interface {
	Orders(ctx context.Context, f Filter) ([]OrderSnapshot, error)
	Links(ctx context.Context, f Filter) ([]LinkSnapshot, error)
}

// Load fetches orders and links concurrently.
func Load(ctx context.Context, src Source, f Filter) ([]OrderSnapshot, []LinkSnapshot, error) {
	var (
		orders []OrderSnapshot
		links  []LinkSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = src.Orders(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		links, err = src.Links(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return orders, links, nil
}

// PostgresSource reads the report input from PostgreSQL.
type PostgresSource struct {
	pool db.Pool
}

// NewSource creates a new source.
func NewSource(pool db.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// orderPredicate selects the orders of f; it binds $1..$4.
const orderPredicate = `
	o.status <> 'CANCELLED'
	AND ($1::bigint = 0 OR o.buyer_id = $1)
	AND ($2::timestamptz IS NULL OR o.created_at >= $2)
	AND ($3::timestamptz IS NULL OR o.created_at < $3)
	AND ($4::text = '' OR o.order_number ILIKE '%' || $4 || '%' ESCAPE '\' OR o.buyer_name ILIKE '%' || $4 || '%' ESCAPE '\')`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeLiteral makes search match itself literally inside an ILIKE pattern.
func likeLiteral(search string) string {
	return likeEscaper.Replace(search)
}

func filterArgs(f Filter) []any {
	var from, to *time.Time
	if !f.From.IsZero() {
		v := f.From
		from = &v
	}
	if !f.To.IsZero() {
		v := f.To.AddDate(0, 0, 1)
		to = &v
	}
	return []any{f.BuyerID, from, to, likeLiteral(f.Search)}
}

// Orders loads the non-cancelled orders matching f.
func (s *PostgresSource) Orders(ctx context.Context, f Filter) ([]OrderSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.order_number, o.created_at, o.buyer_id, o.buyer_name, o.product_id,
			o.unit, o.quantity, o.total_amount, o.status
		FROM sales_orders o
		WHERE `+orderPredicate+`
		ORDER BY o.created_at, o.id
	`, filterArgs(f)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderSnapshot
	for rows.Next() {
		var (
			o      OrderSnapshot
			status string
		)
		if err := rows.Scan(&o.OrderID, &o.OrderNumber, &o.OrderDate, &o.BuyerID, &o.BuyerName, &o.ProductID,
			&o.Unit, &o.Quantity, &o.TotalAmount, &status); err != nil {
			return nil, err
		}
		o.Status = fulfilment.OrderStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Links loads the links of the orders matching f, valued per invoice.
func (s *PostgresSource) Links(ctx context.Context, f Filter) ([]LinkSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.sales_order_id, l.invoice_id, i.invoice_number, i.invoice_date, i.status, l.quantity,
			COALESCE(p.taxable, 0), COALESCE(p.qty, 0), i.subtotal, COALESCE(t.qty, 0)
		FROM order_invoice_links l
		JOIN sales_orders o ON o.id = l.sales_order_id
		JOIN invoices i ON i.id = l.invoice_id
		LEFT JOIN LATERAL (
			SELECT SUM(il.taxable) AS taxable, SUM(il.quantity) AS qty
			FROM invoice_lines il
			WHERE il.invoice_id = i.id AND il.product_id = o.product_id
		) p ON TRUE
		LEFT JOIN LATERAL (
			SELECT SUM(il.quantity) AS qty FROM invoice_lines il WHERE il.invoice_id = i.id
		) t ON TRUE
		WHERE i.status <> 'CANCELLED' AND `+orderPredicate+`
		ORDER BY l.sales_order_id, i.invoice_date, i.id
	`, filterArgs(f)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LinkSnapshot
	for rows.Next() {
		var l LinkSnapshot
		if err := rows.Scan(&l.OrderID, &l.InvoiceID, &l.InvoiceNumber, &l.InvoiceDate, &l.InvoiceStatus, &l.Quantity,
			&l.ProductTaxable, &l.ProductQuantity, &l.InvoiceSubtotal, &l.InvoiceQuantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
