package numbering

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/recon/internal/platform/httpx"
)

// ActorHeader names the request header carrying the acting user.
const ActorHeader = "X-Actor"

var errorStatuses = []httpx.ErrorStatus{
	{Err: ErrSeriesNotFound, Status: http.StatusNotFound, Title: "Series Not Found"},
	{Err: ErrSeriesInactive, Status: http.StatusConflict, Title: "Series Inactive"},
	{Err: ErrSeriesExists, Status: http.StatusConflict, Title: "Series Exists"},
	{Err: ErrStaleInvoiceReference, Status: http.StatusConflict, Title: "Stale Invoice Reference"},
	{Err: ErrDuplicateInvoiceNumber, Status: http.StatusConflict, Title: "Duplicate Invoice Number"},
	{Err: ErrInvoiceNotFound, Status: http.StatusNotFound, Title: "Invoice Not Found"},
	{Err: ErrSeriesContention, Status: http.StatusServiceUnavailable, Title: "Series Contention"},
}

// ErrorStatuses exposes the HTTP mapping of this package's errors.
func ErrorStatuses() []httpx.ErrorStatus {
	return errorStatuses
}

// Handler serves numbering endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
	onWrite func(context.Context)
}

// NewHandler constructs the handler. onWrite, when set, runs after every
// successful rename so callers can refresh derived views.
func NewHandler(service *Service, logger *slog.Logger, onWrite func(context.Context)) *Handler {
	return &Handler{service: service, logger: logger, onWrite: onWrite}
}

// MountRoutes registers numbering routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/series", h.handleCreateSeries)
	r.Get("/series/{name}", h.handleGetSeries)
	r.Patch("/series/{name}", h.handleSetActive)
	r.Post("/series/{name}/next", h.handleNext)
	r.Put("/invoices/{id}/number", h.handleCorrect)
}

func (h *Handler) handleCreateSeries(w http.ResponseWriter, r *http.Request) {
	var in CreateSeriesInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	series, err := h.service.CreateSeries(r.Context(), in)
	if err != nil {
		h.fail(w, "create series", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, series)
}

func (h *Handler) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, "get series", err)
		return
	}
	httpx.JSON(w, http.StatusOK, series)
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if body.Active == nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "active is required")
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.service.SetActive(r.Context(), name, *body.Active); err != nil {
		h.fail(w, "set series active", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	number, err := h.service.Next(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, "issue number", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"number": number})
}

func (h *Handler) handleCorrect(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in CorrectInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.InvoiceID = id
	in.Actor = r.Header.Get(ActorHeader)

	out, err := h.service.Correct(r.Context(), in)
	if err != nil {
		h.fail(w, "correct invoice number", err)
		return
	}
	if h.onWrite != nil {
		h.onWrite(r.Context())
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err, errorStatuses...)
}
