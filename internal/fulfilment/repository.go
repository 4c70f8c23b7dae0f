package fulfilment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/recon/internal/platform/db"
	"github.com/odyssey-erp/recon/internal/shared"
)

// Repository defines the persistence contract of the ledger.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertOrder(ctx context.Context, order SalesOrder) (SalesOrder, error)
	GetOrder(ctx context.Context, id int64) (SalesOrder, error)
	ListLinks(ctx context.Context, orderID int64) ([]Link, error)
}

// TxRepository holds the statements that run under the order row lock.
type TxRepository interface {
	// LockOrder selects the order FOR UPDATE.
	LockOrder(ctx context.Context, id int64) (SalesOrder, error)
	// InvoiceStatus selects the invoice FOR SHARE and returns its status.
	InvoiceStatus(ctx context.Context, invoiceID int64) (string, error)
	// LinkedQuantity sums the links of orderID, ignoring excludeInvoiceID.
	LinkedQuantity(ctx context.Context, orderID, excludeInvoiceID int64) (decimal.Decimal, error)
	UpsertLink(ctx context.Context, orderID, invoiceID int64, quantity decimal.Decimal) error
	DeleteLink(ctx context.Context, orderID, invoiceID int64) (bool, error)
	CountLinks(ctx context.Context, orderID int64) (int, error)
	OrdersForInvoice(ctx context.Context, invoiceID int64) ([]int64, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error
}

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	pool db.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// WithTx runs fn in a READ COMMITTED transaction. Every statement after
// LockOrder sees the rows committed by the previous holder of the lock.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const orderColumns = `id, order_number, buyer_id, buyer_name, product_id, quantity, unit, rate, total_amount, status, created_at`

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var (
		o      SalesOrder
		status string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.BuyerID, &o.BuyerName, &o.ProductID,
		&o.Quantity, &o.Unit, &o.Rate, &o.TotalAmount, &status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesOrder{}, ErrOrderNotFound
		}
		return SalesOrder{}, err
	}
	o.Status = OrderStatus(status)
	return o, nil
}

// InsertOrder inserts a new order and returns it with its id.
func (r *PostgresRepository) InsertOrder(ctx context.Context, o SalesOrder) (SalesOrder, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sales_orders (
			order_number, buyer_id, buyer_name, product_id, quantity, unit, rate, total_amount, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, o.OrderNumber, o.BuyerID, o.BuyerName, o.ProductID, o.Quantity, o.Unit, o.Rate, o.TotalAmount, string(o.Status)).
		Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return SalesOrder{}, ErrDuplicateOrderNumber
		}
		return SalesOrder{}, err
	}
	return o, nil
}

// GetOrder loads one order.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (SalesOrder, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id))
}

// ListLinks returns the links of an order in invoice date order.
func (r *PostgresRepository) ListLinks(ctx context.Context, orderID int64) ([]Link, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.sales_order_id, l.invoice_id, i.invoice_number, l.quantity, l.updated_at
		FROM order_invoice_links l
		JOIN invoices i ON i.id = l.invoice_id
		WHERE l.sales_order_id = $1
		ORDER BY i.invoice_date, i.id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.OrderID, &l.InvoiceID, &l.InvoiceNumber, &l.Quantity, &l.UpdatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository exposes the ledger statements on an open transaction so
// other packages can release links inside their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (t *txRepository) LockOrder(ctx context.Context, id int64) (SalesOrder, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) InvoiceStatus(ctx context.Context, invoiceID int64) (string, error) {
	var status string
	err := t.tx.QueryRow(ctx, `SELECT status FROM invoices WHERE id = $1 FOR SHARE`, invoiceID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvoiceNotFound
		}
		return "", err
	}
	return status, nil
}

func (t *txRepository) LinkedQuantity(ctx context.Context, orderID, excludeInvoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM order_invoice_links
		WHERE sales_order_id = $1 AND invoice_id <> $2
	`, orderID, excludeInvoiceID).Scan(&sum)
	return sum, err
}

func (t *txRepository) UpsertLink(ctx context.Context, orderID, invoiceID int64, quantity decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_invoice_links (sales_order_id, invoice_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (sales_order_id, invoice_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()
	`, orderID, invoiceID, quantity)
	return err
}

func (t *txRepository) DeleteLink(ctx context.Context, orderID, invoiceID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM order_invoice_links WHERE sales_order_id = $1 AND invoice_id = $2`, orderID, invoiceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepository) CountLinks(ctx context.Context, orderID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM order_invoice_links WHERE sales_order_id = $1`, orderID).Scan(&n)
	return n, err
}

func (t *txRepository) OrdersForInvoice(ctx context.Context, invoiceID int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT sales_order_id FROM order_invoice_links
		WHERE invoice_id = $1
		ORDER BY sales_order_id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *txRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_orders SET status = $2, updated_at = NOW() WHERE id = $1`, orderID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
