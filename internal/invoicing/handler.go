package invoicing

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/recon/internal/gst"
	"github.com/odyssey-erp/recon/internal/platform/httpx"
	"github.com/odyssey-erp/recon/internal/shared"
)

const (
	// ActorHeader names the request header carrying the acting user.
	ActorHeader = "X-Actor"
	// IdempotencyHeader names the request header carrying the idempotency key.
	IdempotencyHeader = "Idempotency-Key"

	idempotencyModule = "invoicing.create"
)

var errorStatuses = []httpx.ErrorStatus{
	{Err: ErrInvoiceNotFound, Status: http.StatusNotFound, Title: "Invoice Not Found"},
	{Err: ErrInvalidTransition, Status: http.StatusConflict, Title: "Invalid Status Transition"},
	{Err: ErrPartyNotFound, Status: http.StatusUnprocessableEntity, Title: "Party Not Found"},
	{Err: ErrProductNotFound, Status: http.StatusUnprocessableEntity, Title: "Product Not Found"},
	{Err: ErrDuplicateInvoiceNumber, Status: http.StatusConflict, Title: "Duplicate Invoice Number"},
	{Err: gst.ErrMissingTaxJurisdiction, Status: http.StatusUnprocessableEntity, Title: "Missing Tax Jurisdiction"},
	{Err: gst.ErrMixedTaxPattern, Status: http.StatusUnprocessableEntity, Title: "Mixed Tax Pattern"},
}

// ErrorStatuses exposes the HTTP mapping of this package's errors.
func ErrorStatuses() []httpx.ErrorStatus {
	return errorStatuses
}

// Renderer turns a computed invoice into a printable document.
type Renderer interface {
	RenderInvoice(ctx context.Context, inv Invoice, summary []gst.SummaryEntry) ([]byte, error)
}

// KeyStore records processed idempotency keys.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler serves invoice endpoints.
type Handler struct {
	service  *Service
	keys     KeyStore
	renderer Renderer
	logger   *slog.Logger
	onWrite  func(context.Context)
}

// HandlerOptions wires optional collaborators of the Handler.
type HandlerOptions struct {
	Keys     KeyStore
	Renderer Renderer
	Logger   *slog.Logger
	OnWrite  func(context.Context)
}

// NewHandler constructs the handler.
func NewHandler(service *Service, opts HandlerOptions) *Handler {
	return &Handler{
		service:  service,
		keys:     opts.Keys,
		renderer: opts.Renderer,
		logger:   opts.Logger,
		onWrite:  opts.OnWrite,
	}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/pdf", h.handlePDF)
		r.Post("/{id}/submit", h.handleSubmit)
		r.Post("/{id}/cancel", h.handleCancel)
	})
	r.Get("/reports/tax-summary", h.handleTaxSummary)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.Actor = r.Header.Get(ActorHeader)

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" && h.keys != nil {
		if err := h.keys.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			h.fail(w, "idempotency check", err)
			return
		}
	}

	inv, err := h.service.Create(r.Context(), in)
	if err != nil {
		if key != "" && h.keys != nil {
			if derr := h.keys.Delete(r.Context(), key); derr != nil && h.logger != nil {
				h.logger.Error("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		h.fail(w, "create invoice", err)
		return
	}
	h.written(r.Context())
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, struct {
		Invoice
		TaxSummary []gst.SummaryEntry `json:"tax_summary"`
	}{inv, gst.Summarize(inv.SummaryLines())})
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Renderer Unavailable", "document rendering is not configured")
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	pdf, err := h.renderer.RenderInvoice(r.Context(), inv, gst.Summarize(inv.SummaryLines()))
	if err != nil {
		if h.logger != nil {
			h.logger.Error("render invoice", slog.Int64("invoice", id), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "document renderer returned an error")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", pdfDisposition(inv.Number))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// pdfDisposition quotes the invoice number; renames accept arbitrary text.
func pdfDisposition(number string) string {
	return mime.FormatMediaType("inline", map[string]string{"filename": number + ".pdf"})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Submit(r.Context(), id, r.Header.Get(ActorHeader)); err != nil {
		h.fail(w, "submit invoice", err)
		return
	}
	h.written(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	released, err := h.service.Cancel(r.Context(), id, r.Header.Get(ActorHeader))
	if err != nil {
		h.fail(w, "cancel invoice", err)
		return
	}
	h.written(r.Context())
	if released == nil {
		released = []int64{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice_id": id, "released_orders": released})
}

// handleTaxSummary accepts ?invoice_ids=1,2,3 or ?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handler) handleTaxSummary(w http.ResponseWriter, r *http.Request) {
	q, err := parseSummaryQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.TaxSummary(r.Context(), q)
	if err != nil {
		h.fail(w, "tax summary", err)
		return
	}
	if summary.Entries == nil {
		summary.Entries = []gst.SummaryEntry{}
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func parseSummaryQuery(r *http.Request) (TaxSummaryQuery, error) {
	var q TaxSummaryQuery
	values := r.URL.Query()
	if raw := strings.TrimSpace(values.Get("invoice_ids")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return q, shared.Invalid("invoice_ids", "invalid id %q", part)
			}
			q.InvoiceIDs = append(q.InvoiceIDs, id)
		}
		return q, nil
	}
	for field, dst := range map[string]*time.Time{"from": &q.From, "to": &q.To} {
		raw := strings.TrimSpace(values.Get(field))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return q, shared.Invalid(field, "must be a date in YYYY-MM-DD form")
		}
		*dst = t
	}
	return q, nil
}

func (h *Handler) written(ctx context.Context) {
	if h.onWrite != nil {
		h.onWrite(ctx)
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		if errors.Is(err, shared.ErrValidation) {
			h.logger.Info(op, slog.Any("error", err))
		} else {
			h.logger.Warn(op, slog.Any("error", err))
		}
	}
	httpx.RespondError(w, err, errorStatuses...)
}
