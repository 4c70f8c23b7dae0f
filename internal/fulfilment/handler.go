package fulfilment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/recon/internal/platform/httpx"
)

var errorStatuses = []httpx.ErrorStatus{
	{Err: ErrOverInvoicing, Status: http.StatusConflict, Title: "Over Invoicing"},
	{Err: ErrOrderNotFound, Status: http.StatusNotFound, Title: "Order Not Found"},
	{Err: ErrOrderCancelled, Status: http.StatusConflict, Title: "Order Cancelled"},
	{Err: ErrOrderHasLinks, Status: http.StatusConflict, Title: "Order Has Invoice Links"},
	{Err: ErrInvoiceNotFound, Status: http.StatusNotFound, Title: "Invoice Not Found"},
	{Err: ErrInvoiceCancelled, Status: http.StatusConflict, Title: "Invoice Cancelled"},
	{Err: ErrLinkNotFound, Status: http.StatusNotFound, Title: "Link Not Found"},
	{Err: ErrDuplicateOrderNumber, Status: http.StatusConflict, Title: "Duplicate Order Number"},
}

// ErrorStatuses exposes the HTTP mapping of this package's errors.
func ErrorStatuses() []httpx.ErrorStatus {
	return errorStatuses
}

// Handler serves order and ledger endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
	onWrite func(context.Context)
}

// NewHandler constructs the handler. onWrite runs after every successful
// ledger write.
func NewHandler(service *Service, logger *slog.Logger, onWrite func(context.Context)) *Handler {
	return &Handler{service: service, logger: logger, onWrite: onWrite}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Get("/pending", h.handlePending)
			r.Post("/cancel", h.handleCancel)
			r.Post("/links", h.handleLink)
			r.Delete("/links/{invoiceID}", h.handleUnlink)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateOrderInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		h.fail(w, "create order", err)
		return
	}
	h.written(r.Context())
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pending, err := h.service.PendingQuantity(r.Context(), id)
	if err != nil {
		h.fail(w, "pending quantity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order_id": id, "pending_quantity": pending})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.CancelOrder(r.Context(), id); err != nil {
		h.fail(w, "cancel order", err)
		return
	}
	h.written(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in LinkInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.LinkInvoiceToOrder(r.Context(), id, in.InvoiceID, in.Quantity)
	if err != nil {
		h.fail(w, "link invoice", err)
		return
	}
	h.written(r.Context())
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleUnlink(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoiceID, err := httpx.IDParam(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.UnlinkInvoice(r.Context(), id, invoiceID)
	if err != nil {
		h.fail(w, "unlink invoice", err)
		return
	}
	h.written(r.Context())
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) written(ctx context.Context) {
	if h.onWrite != nil {
		h.onWrite(ctx)
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err, errorStatuses...)
}
