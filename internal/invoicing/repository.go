package invoicing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/recon/internal/fulfilment"
	"github.com/odyssey-erp/recon/internal/gst"
	"github.com/odyssey-erp/recon/internal/platform/db"
	"github.com/odyssey-erp/recon/internal/shared"
)

// Repository defines the persistence contract of invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	SummaryLines(ctx context.Context, q TaxSummaryQuery) ([]gst.SummaryLine, error)
}

// TxRepository holds the statements of one invoice unit of work.
type TxRepository interface {
	NumberInUse(ctx context.Context, number string) (bool, error)
	Insert(ctx context.Context, inv *Invoice) error
	// Lock selects the invoice header FOR UPDATE.
	Lock(ctx context.Context, id int64) (Invoice, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	RecordAudit(ctx context.Context, entry shared.AuditLog) error
	// Ledger exposes the order ledger on the same transaction.
	Ledger() fulfilment.TxRepository
}

// PartyDirectory resolves party master data.
type PartyDirectory interface {
	Party(ctx context.Context, id int64) (Party, error)
}

// ProductCatalog resolves product master data.
type ProductCatalog interface {
	Product(ctx context.Context, id int64) (Product, error)
}

// PostgresRepository implements Repository, PartyDirectory and ProductCatalog.
type PostgresRepository struct {
	pool  db.Pool
	audit *shared.AuditLogger
}

// NewRepository creates a new repository.
func NewRepository(pool db.Pool, audit *shared.AuditLogger) *PostgresRepository {
	return &PostgresRepository{pool: pool, audit: audit}
}

// WithTx runs fn in a READ COMMITTED transaction, matching the isolation of
// the order ledger whose rows it may touch.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var audit *shared.AuditLogger
		if r.audit != nil {
			audit = r.audit.WithExecutor(tx)
		}
		return fn(ctx, &txRepository{tx: tx, audit: audit})
	})
}

const headerColumns = `id, invoice_number, series, invoice_date, buyer_id,
	buyer_name, buyer_state_code, buyer_gstin, seller_name, seller_state_code, seller_gstin,
	classification, subtotal, cgst, sgst, igst, total, round_off, grand_total, status, created_at`

func scanHeader(row pgx.Row) (Invoice, error) {
	var (
		inv           Invoice
		buyerID       *int64
		class, status string
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.Series, &inv.InvoiceDate, &buyerID,
		&inv.Buyer.Name, &inv.Buyer.StateCode, &inv.Buyer.GSTIN,
		&inv.Seller.Name, &inv.Seller.StateCode, &inv.Seller.GSTIN,
		&class, &inv.Subtotal, &inv.CGST, &inv.SGST, &inv.IGST, &inv.Total,
		&inv.RoundOff, &inv.GrandTotal, &status, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	if buyerID != nil {
		inv.BuyerID = *buyerID
	}
	inv.Buyer.StateName = gst.StateName(inv.Buyer.StateCode)
	inv.Seller.StateName = gst.StateName(inv.Seller.StateCode)
	inv.Classification = gst.Classification(class)
	inv.Status = Status(status)
	return inv, nil
}

// Get loads an invoice with its lines.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanHeader(r.pool.QueryRow(ctx, `SELECT `+headerColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return Invoice{}, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT line_no, product_id, description, hsn_code, unit, quantity, rate, discount_percent, tax_rate,
			gross, discount, taxable, cgst_rate, cgst, sgst_rate, sgst, igst_rate, igst, total
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.LineNo, &l.ProductID, &l.Description, &l.Code, &l.Unit,
			&l.Quantity, &l.Rate, &l.DiscountPercent, &l.TaxRate,
			&l.Gross, &l.Discount, &l.Taxable, &l.CGSTRate, &l.CGST, &l.SGSTRate, &l.SGST,
			&l.IGSTRate, &l.IGST, &l.LineAmounts.Total); err != nil {
			return Invoice{}, err
		}
		l.Classification = inv.Classification
		inv.Lines = append(inv.Lines, l)
	}
	return inv, rows.Err()
}

// SummaryLines loads the lines of non-cancelled invoices selected by q in
// invoice order.
func (r *PostgresRepository) SummaryLines(ctx context.Context, q TaxSummaryQuery) ([]gst.SummaryLine, error) {
	var (
		rows pgx.Rows
		err  error
	)
	const selectLines = `
		SELECT l.hsn_code, l.taxable, l.cgst_rate, l.cgst, l.sgst_rate, l.sgst, l.igst_rate, l.igst
		FROM invoice_lines l
		JOIN invoices i ON i.id = l.invoice_id
		WHERE i.status <> 'CANCELLED' AND `
	const orderBy = ` ORDER BY i.invoice_date, i.id, l.line_no`
	if len(q.InvoiceIDs) > 0 {
		rows, err = r.pool.Query(ctx, selectLines+`i.id = ANY($1)`+orderBy, q.InvoiceIDs)
	} else {
		rows, err = r.pool.Query(ctx, selectLines+`i.invoice_date BETWEEN $1 AND $2`+orderBy, q.From, q.To)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gst.SummaryLine
	for rows.Next() {
		var l gst.SummaryLine
		if err := rows.Scan(&l.Code, &l.Taxable, &l.CGSTRate, &l.CGST, &l.SGSTRate, &l.SGST, &l.IGSTRate, &l.IGST); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Party loads a party from master data.
func (r *PostgresRepository) Party(ctx context.Context, id int64) (Party, error) {
	var p Party
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, address, state_code, gstin FROM parties WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Address, &p.StateCode, &p.GSTIN)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Party{}, ErrPartyNotFound
		}
		return Party{}, err
	}
	p.StateName = gst.StateName(p.StateCode)
	return p, nil
}

// Product loads a product from master data.
func (r *PostgresRepository) Product(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, hsn_code, unit, tax_rate FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.HSNCode, &p.Unit, &p.TaxRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

type txRepository struct {
	tx    pgx.Tx
	audit *shared.AuditLogger
}

func (t *txRepository) NumberInUse(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM invoices WHERE invoice_number = $1 AND status <> 'CANCELLED')
	`, number).Scan(&exists)
	return exists, err
}

func (t *txRepository) Insert(ctx context.Context, inv *Invoice) error {
	var buyerID *int64
	if inv.BuyerID > 0 {
		buyerID = &inv.BuyerID
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoices (
			invoice_number, series, invoice_date, buyer_id,
			buyer_name, buyer_state_code, buyer_gstin, seller_name, seller_state_code, seller_gstin,
			classification, subtotal, cgst, sgst, igst, total, round_off, grand_total, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at
	`, inv.Number, inv.Series, inv.InvoiceDate, buyerID,
		inv.Buyer.Name, inv.Buyer.StateCode, inv.Buyer.GSTIN,
		inv.Seller.Name, inv.Seller.StateCode, inv.Seller.GSTIN,
		string(inv.Classification), inv.Subtotal, inv.CGST, inv.SGST, inv.IGST, inv.Total,
		inv.RoundOff, inv.GrandTotal, string(inv.Status)).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return ErrDuplicateInvoiceNumber
		}
		return err
	}

	for _, l := range inv.Lines {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO invoice_lines (
				invoice_id, line_no, product_id, description, hsn_code, unit,
				quantity, rate, discount_percent, tax_rate,
				gross, discount, taxable, cgst_rate, cgst, sgst_rate, sgst, igst_rate, igst, total
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		`, inv.ID, l.LineNo, l.ProductID, l.Description, l.Code, l.Unit,
			l.Quantity, l.Rate, l.DiscountPercent, l.TaxRate,
			l.Gross, l.Discount, l.Taxable, l.CGSTRate, l.CGST, l.SGSTRate, l.SGST,
			l.IGSTRate, l.IGST, l.LineAmounts.Total)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) Lock(ctx context.Context, id int64) (Invoice, error) {
	return scanHeader(t.tx.QueryRow(ctx, `SELECT `+headerColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (t *txRepository) RecordAudit(ctx context.Context, entry shared.AuditLog) error {
	if t.audit == nil {
		return nil
	}
	return t.audit.Record(ctx, entry)
}

func (t *txRepository) Ledger() fulfilment.TxRepository {
	return fulfilment.NewTxRepository(t.tx)
}
