package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/recon/internal/fulfilment"
	"github.com/odyssey-erp/recon/internal/gst"
	"github.com/odyssey-erp/recon/internal/shared"
)

// SystemActor is recorded on audit entries without an acting user.
const SystemActor = "system"

// NumberIssuer issues document numbers from a named series.
type NumberIssuer interface {
	Next(ctx context.Context, series string) (string, error)
}

// Service creates invoices and drives their lifecycle.
type Service struct {
	repo     Repository
	parties  PartyDirectory
	products ProductCatalog
	numbers  NumberIssuer
	series   string
	seller   gst.PartyTaxProfile
	validate *validator.Validate
	recorder shared.OperationRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// Options configures the Service.
type Options struct {
	Parties  PartyDirectory
	Products ProductCatalog
	Numbers  NumberIssuer
	// Series defaults to DefaultSeries.
	Series string
	// Seller is used when a request names no seller.
	Seller   gst.PartyTaxProfile
	Recorder shared.OperationRecorder
	Logger   *slog.Logger
}

// NewService creates a new service.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:     repo,
		parties:  opts.Parties,
		products: opts.Products,
		numbers:  opts.Numbers,
		series:   opts.Series,
		seller:   opts.Seller,
		validate: shared.NewValidator(),
		recorder: opts.Recorder,
		logger:   opts.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.series == "" {
		s.series = DefaultSeries
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Create prices and stores a draft invoice. Nothing is persisted when any
// line, party or number check fails.
func (s *Service) Create(ctx context.Context, in CreateInput) (inv Invoice, err error) {
	defer func() { shared.Observe(s.recorder, "invoice.create", err, domainErrors...) }()

	in.Number = strings.TrimSpace(in.Number)
	in.Series = strings.TrimSpace(in.Series)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Invoice{}, err
	}

	buyer, err := s.resolveParty(ctx, "buyer", in.Buyer, in.BuyerID, nil)
	if err != nil {
		return Invoice{}, err
	}
	seller, err := s.resolveParty(ctx, "seller", in.Seller, in.SellerID, &s.seller)
	if err != nil {
		return Invoice{}, err
	}
	lines, err := s.enrichLines(ctx, in.Lines)
	if err != nil {
		return Invoice{}, err
	}
	computed, err := Compute(seller, buyer, lines)
	if err != nil {
		return Invoice{}, err
	}

	inv = Invoice{
		Number:      in.Number,
		Series:      in.Series,
		InvoiceDate: in.InvoiceDate,
		BuyerID:     in.BuyerID,
		Buyer:       withStateName(buyer),
		Seller:      withStateName(seller),
		Status:      StatusDraft,
	}
	computed.Apply(&inv)
	if inv.InvoiceDate.IsZero() {
		inv.InvoiceDate = s.now().Truncate(24 * time.Hour)
	}
	if inv.Number == "" {
		if inv.Series == "" {
			inv.Series = s.series
		}
		if s.numbers == nil {
			return Invoice{}, shared.Invalid("number", "is required when no numbering series is configured")
		}
		inv.Number, err = s.numbers.Next(ctx, inv.Series)
		if err != nil {
			return Invoice{}, fmt.Errorf("issue invoice number: %w", err)
		}
	}

	actor := actorOrSystem(in.Actor)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.NumberInUse(ctx, inv.Number)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateInvoiceNumber
		}
		if err := tx.Insert(ctx, &inv); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   AuditActionCreated,
			Entity:   "invoice",
			EntityID: strconv.FormatInt(inv.ID, 10),
			Meta: map[string]any{
				"number":      inv.Number,
				"grand_total": inv.GrandTotal.String(),
			},
		})
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("create invoice %s: %w", inv.Number, err)
	}
	s.logger.Info("invoice created",
		slog.Int64("invoice", inv.ID),
		slog.String("number", inv.Number),
		slog.String("classification", inv.Classification.String()),
		slog.String("grand_total", inv.GrandTotal.String()))
	return inv, nil
}

// Get loads an invoice with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, fmt.Errorf("get invoice %d: %w", id, err)
	}
	return inv, nil
}

// Submit moves a draft invoice to submitted.
func (s *Service) Submit(ctx context.Context, id int64, actor string) (err error) {
	defer func() { shared.Observe(s.recorder, "invoice.submit", err, domainErrors...) }()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !inv.Status.CanSubmit() {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, inv.Status, StatusSubmitted)
		}
		if err := tx.UpdateStatus(ctx, id, StatusSubmitted); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Actor:    actorOrSystem(actor),
			Action:   AuditActionSubmitted,
			Entity:   "invoice",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"number": inv.Number},
		})
	})
	if err != nil {
		return fmt.Errorf("submit invoice %d: %w", id, err)
	}
	s.logger.Info("invoice submitted", slog.Int64("invoice", id))
	return nil
}

// Cancel cancels an invoice and releases its order links in the same
// transaction, so every affected order returns to the matching status.
func (s *Service) Cancel(ctx context.Context, id int64, actor string) (released []int64, err error) {
	defer func() { shared.Observe(s.recorder, "invoice.cancel", err, domainErrors...) }()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !inv.Status.CanCancel() {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, inv.Status, StatusCancelled)
		}
		released, err = fulfilment.ReleaseInvoiceLinks(ctx, tx.Ledger(), id)
		if err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, StatusCancelled); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Actor:    actorOrSystem(actor),
			Action:   AuditActionCancelled,
			Entity:   "invoice",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"number": inv.Number, "released_orders": released},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cancel invoice %d: %w", id, err)
	}
	s.logger.Info("invoice cancelled", slog.Int64("invoice", id), slog.Int("released_orders", len(released)))
	return released, nil
}

// TaxSummary groups the lines of the selected non-cancelled invoices by
// classification code.
func (s *Service) TaxSummary(ctx context.Context, q TaxSummaryQuery) (TaxSummary, error) {
	if len(q.InvoiceIDs) == 0 {
		if q.From.IsZero() || q.To.IsZero() {
			return TaxSummary{}, shared.Invalid("invoice_ids", "either invoice ids or a from/to period is required")
		}
		if q.To.Before(q.From) {
			return TaxSummary{}, shared.Invalid("to", "must not be before from")
		}
	}
	for i, id := range q.InvoiceIDs {
		if id <= 0 {
			return TaxSummary{}, shared.Invalid(fmt.Sprintf("invoice_ids[%d]", i), "must be positive")
		}
	}
	lines, err := s.repo.SummaryLines(ctx, q)
	if err != nil {
		return TaxSummary{}, fmt.Errorf("load summary lines: %w", err)
	}
	entries := gst.Summarize(lines)
	return TaxSummary{Entries: entries, Totals: gst.SummaryTotals(entries)}, nil
}

func (s *Service) resolveParty(ctx context.Context, field string, profile *gst.PartyTaxProfile, id int64, fallback *gst.PartyTaxProfile) (gst.PartyTaxProfile, error) {
	switch {
	case profile != nil:
		return *profile, nil
	case id > 0:
		if s.parties == nil {
			return gst.PartyTaxProfile{}, shared.Invalid(field, "party lookup is not configured")
		}
		p, err := s.parties.Party(ctx, id)
		if err != nil {
			if errors.Is(err, ErrPartyNotFound) {
				return gst.PartyTaxProfile{}, fmt.Errorf("%s %d: %w", field, id, err)
			}
			return gst.PartyTaxProfile{}, fmt.Errorf("load %s %d: %w", field, id, err)
		}
		return p.PartyTaxProfile, nil
	case fallback != nil && *fallback != (gst.PartyTaxProfile{}):
		return *fallback, nil
	}
	return gst.PartyTaxProfile{}, shared.Invalid(field, "is required")
}

func (s *Service) enrichLines(ctx context.Context, in []LineInput) ([]Line, error) {
	lines := make([]Line, len(in))
	for i, li := range in {
		line := Line{
			ProductID:       li.ProductID,
			Description:     strings.TrimSpace(li.Description),
			Quantity:        li.Quantity,
			Rate:            li.Rate,
			DiscountPercent: li.DiscountPercent,
		}
		if s.products == nil {
			if li.TaxRate == nil {
				return nil, shared.Invalid(fmt.Sprintf("lines[%d].tax_rate", i), "is required without a product catalog")
			}
			line.TaxRate = *li.TaxRate
			lines[i] = line
			continue
		}
		product, err := s.products.Product(ctx, li.ProductID)
		if err != nil {
			return nil, fmt.Errorf("lines[%d] product %d: %w", i, li.ProductID, err)
		}
		line.Code = product.HSNCode
		line.Unit = product.Unit
		line.TaxRate = resolveTaxRate(product, li.TaxRate)
		if line.Description == "" {
			line.Description = product.Name
		}
		lines[i] = line
	}
	return lines, nil
}

func withStateName(p gst.PartyTaxProfile) gst.PartyTaxProfile {
	if p.StateName == "" {
		code := p.StateCode
		if code == "" {
			code, _ = gst.StateCodeFromGSTIN(p.GSTIN)
		}
		p.StateName = gst.StateName(code)
	}
	return p
}

func actorOrSystem(actor string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return SystemActor
}

func prefixField(err error, prefix string) error {
	var ve *shared.ValidationError
	if errors.As(err, &ve) {
		if ve.Field == "" {
			ve.Field = prefix
		} else {
			ve.Field = prefix + "." + ve.Field
		}
	}
	return err
}
