package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/recon/internal/fulfilment"
	"github.com/odyssey-erp/recon/internal/invoicing"
	"github.com/odyssey-erp/recon/internal/numbering"
	"github.com/odyssey-erp/recon/internal/observability"
	"github.com/odyssey-erp/recon/internal/platform/httpx"
	"github.com/odyssey-erp/recon/internal/reconciliation"
	"github.com/odyssey-erp/recon/jobs"
	"github.com/odyssey-erp/recon/report"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Ready   []ReadinessCheck

	NumberingHandler      *numbering.Handler
	FulfilmentHandler     *fulfilment.Handler
	InvoicingHandler      *invoicing.Handler
	ReconciliationHandler *reconciliation.Handler
	ReportHandler         *report.Handler
	JobHandler            *jobs.Handler
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Ready))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.NumberingHandler != nil {
			params.NumberingHandler.MountRoutes(r)
		}
		if params.FulfilmentHandler != nil {
			params.FulfilmentHandler.MountRoutes(r)
		}
		if params.InvoicingHandler != nil {
			params.InvoicingHandler.MountRoutes(r)
		}
		if params.ReconciliationHandler != nil {
			params.ReconciliationHandler.MountRoutes(r)
		}
		if params.ReportHandler != nil {
			params.ReportHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported on "+r.URL.Path)
	})
	return r
}

func readinessHandler(checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				result[c.Name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			result[c.Name] = "ok"
		}
		httpx.JSON(w, status, result)
	}
}
