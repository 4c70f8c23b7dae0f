package reconciliation

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/recon/internal/fulfilment"
	"github.com/odyssey-erp/recon/internal/platform/httpx"
	"github.com/odyssey-erp/recon/internal/shared"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handler serves the pending-orders report.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/pending-orders", h.handlePendingOrders)
}

func (h *Handler) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "", "json", "csv", "xlsx":
	default:
		httpx.RespondError(w, shared.Invalid("format", "unsupported format %q", format))
		return
	}

	report, err := h.service.PendingOrders(r.Context(), f)
	if err != nil {
		h.logger.Warn("pending orders report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	stamp := report.GeneratedAt.Format("20060102-150405")
	switch format {
	case "csv":
		h.download(w, contentTypeCSV, "pending-orders-"+stamp+".csv", func(buf *bytes.Buffer) error {
			return WritePendingCSV(buf, report)
		})
	case "xlsx":
		h.download(w, contentTypeXLSX, "pending-orders-"+stamp+".xlsx", func(buf *bytes.Buffer) error {
			return WritePendingXLSX(buf, report)
		})
	default:
		httpx.JSON(w, http.StatusOK, report)
	}
}

// download renders into a buffer first so a failed export still produces a
// problem response.
func (h *Handler) download(w http.ResponseWriter, contentType, filename string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		h.logger.Error("export pending orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var f Filter
	if raw := q.Get("buyer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Filter{}, shared.Invalid("buyer_id", "must be a positive integer")
		}
		f.BuyerID = id
	}
	if raw := q.Get("status"); raw != "" {
		f.Status = fulfilment.OrderStatus(strings.ToUpper(raw))
	}
	var err error
	if f.From, err = parseDate(q.Get("from"), "from"); err != nil {
		return Filter{}, err
	}
	if f.To, err = parseDate(q.Get("to"), "to"); err != nil {
		return Filter{}, err
	}
	f.Search = strings.TrimSpace(q.Get("search"))
	if raw := q.Get("only_pending"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Filter{}, shared.Invalid("only_pending", "must be a boolean")
		}
		f.OnlyPending = v
	}
	return f, f.Validate()
}

func parseDate(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, shared.Invalid(field, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}
