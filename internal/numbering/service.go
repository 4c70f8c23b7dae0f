package numbering

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/recon/internal/shared"
)

// Service issues numbers and performs audited renames.
type Service struct {
	series   SeriesStore
	renames  RenameStore
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new service. renames may be nil when the caller only
// needs to issue numbers.
func NewService(series SeriesStore, renames RenameStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		series:   series,
		renames:  renames,
		validate: shared.NewValidator(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Next issues the next number of the named series.
func (s *Service) Next(ctx context.Context, seriesName string) (string, error) {
	seriesName = strings.TrimSpace(seriesName)
	if seriesName == "" {
		return "", shared.Invalid("series", "is required")
	}
	var (
		series Series
		err    error
	)
	for attempt := 1; attempt <= nextAttempts; attempt++ {
		series, err = s.series.Next(ctx, seriesName)
		if err == nil {
			return series.Current(), nil
		}
		if !shared.IsSerializationFailure(err) {
			return "", fmt.Errorf("next %s: %w", seriesName, err)
		}
		s.logger.Warn("numbering counter update aborted, retrying",
			slog.String("series", seriesName), slog.Int("attempt", attempt), slog.Any("error", err))
	}
	return "", fmt.Errorf("next %s: %w: %v", seriesName, ErrSeriesContention, err)
}

// Get returns the series state.
func (s *Service) Get(ctx context.Context, seriesName string) (Series, error) {
	return s.series.Get(ctx, seriesName)
}

// CreateSeries registers a new series starting at zero.
func (s *Service) CreateSeries(ctx context.Context, in CreateSeriesInput) (Series, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Series{}, err
	}
	if in.Padding == 0 {
		in.Padding = DefaultPadding
	}
	series, err := s.series.Create(ctx, in)
	if err != nil {
		return Series{}, fmt.Errorf("create series %s: %w", in.Name, err)
	}
	s.logger.Info("number series created", slog.String("series", series.Name), slog.String("prefix", series.Prefix))
	return series, nil
}

// SetActive activates or deactivates a series.
func (s *Service) SetActive(ctx context.Context, seriesName string, active bool) error {
	if err := s.series.SetActive(ctx, seriesName, active); err != nil {
		return fmt.Errorf("set series %s active=%t: %w", seriesName, active, err)
	}
	s.logger.Info("number series updated", slog.String("series", seriesName), slog.Bool("active", active))
	return nil
}

// Correct renames an issued invoice number. The stored number must equal
// in.OldNumber and in.NewNumber must not belong to another active invoice.
// No sequence slot is consumed.
func (s *Service) Correct(ctx context.Context, in CorrectInput) (Correction, error) {
	if err := in.normalise(); err != nil {
		return Correction{}, err
	}
	if s.renames == nil {
		return Correction{}, fmt.Errorf("numbering: rename store not configured")
	}

	out := Correction{InvoiceID: in.InvoiceID, OldNumber: in.OldNumber, NewNumber: in.NewNumber, Actor: in.Actor, At: s.now()}
	err := s.renames.WithTx(ctx, func(ctx context.Context, tx RenameTx) error {
		stored, cancelled, err := tx.LockInvoiceNumber(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if cancelled {
			return shared.Invalid("invoice_id", "cancelled invoices cannot be renumbered")
		}
		if stored != in.OldNumber {
			return fmt.Errorf("%w: stored %q, given %q", ErrStaleInvoiceReference, stored, in.OldNumber)
		}
		inUse, err := tx.NumberInUse(ctx, in.NewNumber, in.InvoiceID)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("%w: %s", ErrDuplicateInvoiceNumber, in.NewNumber)
		}
		if err := tx.UpdateInvoiceNumber(ctx, in.InvoiceID, in.NewNumber); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   AuditActionNumberCorrected,
			Entity:   "invoice",
			EntityID: strconv.FormatInt(in.InvoiceID, 10),
			Meta:     map[string]any{"old_number": in.OldNumber, "new_number": in.NewNumber},
			At:       out.At,
		})
	})
	if err != nil {
		return Correction{}, fmt.Errorf("correct invoice %d: %w", in.InvoiceID, err)
	}
	s.logger.Info("invoice number corrected",
		slog.Int64("invoice", in.InvoiceID),
		slog.String("old", in.OldNumber),
		slog.String("new", in.NewNumber),
		slog.String("actor", in.Actor))
	return out, nil
}
