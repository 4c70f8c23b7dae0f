package numbering

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/recon/internal/platform/db"
	"github.com/odyssey-erp/recon/internal/shared"
)

// SeriesStore persists series and performs the atomic increment.
type SeriesStore interface {
	// Next increments the series and returns its state after the increment.
	Next(ctx context.Context, name string) (Series, error)
	Get(ctx context.Context, name string) (Series, error)
	Create(ctx context.Context, in CreateSeriesInput) (Series, error)
	SetActive(ctx context.Context, name string, active bool) error
}

// RenameStore runs renumbering inside one transaction.
type RenameStore interface {
	WithTx(ctx context.Context, fn func(context.Context, RenameTx) error) error
}

// RenameTx exposes the statements a rename needs.
type RenameTx interface {
	// LockInvoiceNumber locks the invoice row and returns its current number
	// and whether it is cancelled.
	LockInvoiceNumber(ctx context.Context, invoiceID int64) (string, bool, error)
	NumberInUse(ctx context.Context, number string, excludeID int64) (bool, error)
	UpdateInvoiceNumber(ctx context.Context, invoiceID int64, number string) error
	RecordAudit(ctx context.Context, entry shared.AuditLog) error
}

// Repository is the PostgreSQL store for series and invoice renames.
type Repository struct {
	pool  db.Pool
	audit *shared.AuditLogger
}

// NewRepository constructs the repository.
func NewRepository(pool db.Pool, audit *shared.AuditLogger) *Repository {
	return &Repository{pool: pool, audit: audit}
}

var readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// Next locks the series row, checks it, and increments the counter. The row
// lock serialises concurrent callers, so ReadCommitted is enough.
func (r *Repository) Next(ctx context.Context, name string) (Series, error) {
	var s Series
	err := db.WithTxOptions(ctx, r.pool, readCommitted, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT id, name, prefix, counter, padding, is_active, updated_at
			FROM number_series
			WHERE name = $1
			FOR UPDATE
		`, name).Scan(&s.ID, &s.Name, &s.Prefix, &s.Counter, &s.Padding, &s.Active, &s.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSeriesNotFound
			}
			return err
		}
		if !s.Active {
			return ErrSeriesInactive
		}
		return tx.QueryRow(ctx, `
			UPDATE number_series
			SET counter = counter + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING counter, updated_at
		`, s.ID).Scan(&s.Counter, &s.UpdatedAt)
	})
	if err != nil {
		return Series{}, err
	}
	return s, nil
}

// Get returns a series by name.
func (r *Repository) Get(ctx context.Context, name string) (Series, error) {
	var s Series
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, prefix, counter, padding, is_active, updated_at
		FROM number_series
		WHERE name = $1
	`, name).Scan(&s.ID, &s.Name, &s.Prefix, &s.Counter, &s.Padding, &s.Active, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Series{}, ErrSeriesNotFound
		}
		return Series{}, err
	}
	return s, nil
}

// Create inserts an active series with a zero counter.
func (r *Repository) Create(ctx context.Context, in CreateSeriesInput) (Series, error) {
	s := Series{Name: in.Name, Prefix: in.Prefix, Padding: in.Padding, Active: true}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO number_series (name, prefix, counter, padding, is_active)
		VALUES ($1, $2, 0, $3, TRUE)
		RETURNING id, updated_at
	`, in.Name, in.Prefix, in.Padding).Scan(&s.ID, &s.UpdatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Series{}, ErrSeriesExists
		}
		return Series{}, err
	}
	return s, nil
}

// SetActive toggles the active flag of a series.
func (r *Repository) SetActive(ctx context.Context, name string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE number_series SET is_active = $2, updated_at = NOW() WHERE name = $1`, name, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSeriesNotFound
	}
	return nil
}

// WithTx runs fn within a ReadCommitted transaction. Renames lock the invoice
// row before reading it.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, RenameTx) error) error {
	return db.WithTxOptions(ctx, r.pool, readCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, audit: r.audit.WithExecutor(tx)})
	})
}

type txRepository struct {
	tx    pgx.Tx
	audit *shared.AuditLogger
}

func (t *txRepository) LockInvoiceNumber(ctx context.Context, invoiceID int64) (string, bool, error) {
	var (
		number string
		status string
	)
	err := t.tx.QueryRow(ctx, `SELECT invoice_number, status FROM invoices WHERE id = $1 FOR UPDATE`, invoiceID).Scan(&number, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, ErrInvoiceNotFound
		}
		return "", false, err
	}
	return number, status == "CANCELLED", nil
}

func (t *txRepository) NumberInUse(ctx context.Context, number string, excludeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM invoices
			WHERE invoice_number = $1 AND id <> $2 AND status <> 'CANCELLED'
		)
	`, number, excludeID).Scan(&exists)
	return exists, err
}

func (t *txRepository) UpdateInvoiceNumber(ctx context.Context, invoiceID int64, number string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET invoice_number = $2, updated_at = NOW() WHERE id = $1`, invoiceID, number)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return ErrDuplicateInvoiceNumber
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (t *txRepository) RecordAudit(ctx context.Context, entry shared.AuditLog) error {
	if err := t.audit.Record(ctx, entry); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}
