// Package numbering issues human-readable document numbers from named series
// and handles administrative renumbering of issued invoices.
package numbering

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/recon/internal/shared"
)

var (
	// ErrSeriesNotFound is returned for an unknown series name.
	ErrSeriesNotFound = errors.New("numbering: series not found")
	// ErrSeriesInactive is returned when the series has been deactivated.
	ErrSeriesInactive = errors.New("numbering: series inactive")
	// ErrSeriesExists is returned when creating a series under a taken name.
	ErrSeriesExists = errors.New("numbering: series already exists")
	// ErrStaleInvoiceReference signals that the stored number no longer matches
	// the caller's view. Re-fetch and retry.
	ErrStaleInvoiceReference = errors.New("numbering: stale invoice reference")
	// ErrDuplicateInvoiceNumber is returned when the number belongs to another active invoice.
	ErrDuplicateInvoiceNumber = errors.New("numbering: duplicate invoice number")
	// ErrInvoiceNotFound is returned when renumbering an unknown invoice.
	ErrInvoiceNotFound = errors.New("numbering: invoice not found")
	// ErrSeriesContention is returned when the counter update kept losing to
	// concurrent transactions.
	ErrSeriesContention = errors.New("numbering: series contention")
)

// nextAttempts bounds retries of a counter update aborted by the database.
const nextAttempts = 3

// DefaultPadding is the zero-padding width used when a series does not set one.
const DefaultPadding = 3

// AuditActionNumberCorrected is the audit action written on every rename.
const AuditActionNumberCorrected = "invoice.number.corrected"

// Series is a named counter. Counter holds the last issued value.
type Series struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Prefix    string    `json:"prefix"`
	Counter   int64     `json:"counter"`
	Padding   int       `json:"padding"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Current renders the last issued number of the series.
func (s Series) Current() string {
	return Format(s.Prefix, s.Counter, s.Padding)
}

// Format renders prefix followed by counter zero-padded to padding digits.
func Format(prefix string, counter int64, padding int) string {
	if padding <= 0 {
		padding = DefaultPadding
	}
	return fmt.Sprintf("%s%0*d", prefix, padding, counter)
}

// CreateSeriesInput registers a new series.
type CreateSeriesInput struct {
	Name    string `json:"name" validate:"required,max=50"`
	Prefix  string `json:"prefix" validate:"max=30"`
	Padding int    `json:"padding" validate:"gte=0,lte=12"`
}

// CorrectInput renames an issued invoice number.
type CorrectInput struct {
	InvoiceID int64  `json:"-"`
	OldNumber string `json:"old_number"`
	NewNumber string `json:"new_number"`
	Actor     string `json:"-"`
}

const maxNumberLength = 64

func (in *CorrectInput) normalise() error {
	in.OldNumber = strings.TrimSpace(in.OldNumber)
	in.NewNumber = strings.TrimSpace(in.NewNumber)
	in.Actor = strings.TrimSpace(in.Actor)
	switch {
	case in.InvoiceID <= 0:
		return shared.Invalid("invoice_id", "must be positive")
	case in.OldNumber == "":
		return shared.Invalid("old_number", "is required")
	case in.NewNumber == "":
		return shared.Invalid("new_number", "is required")
	case len(in.NewNumber) > maxNumberLength:
		return shared.Invalid("new_number", "must be at most %d characters", maxNumberLength)
	case in.NewNumber == in.OldNumber:
		return shared.Invalid("new_number", "must differ from the current number")
	case in.Actor == "":
		return shared.Invalid("actor", "is required")
	}
	return nil
}

// Correction is the outcome of a rename, as written to the audit log.
type Correction struct {
	InvoiceID int64     `json:"invoice_id"`
	OldNumber string    `json:"old_number"`
	NewNumber string    `json:"new_number"`
	Actor     string    `json:"actor"`
	At        time.Time `json:"at"`
}
