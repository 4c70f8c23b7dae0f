package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/recon/internal/jobs"
	"github.com/odyssey-erp/recon/internal/reconciliation"
)

// ReportWarmer builds and caches a pending-orders report.
type ReportWarmer interface {
	PendingOrders(ctx context.Context, f reconciliation.Filter) (reconciliation.Report, error)
}

// ReportWarmupJob pre-populates the report cache for the views the UI opens
// first.
type ReportWarmupJob struct {
	Reports ReportWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReportWarmupJob wires dependencies for the warm-up handler.
func NewReportWarmupJob(reports ReportWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{Reports: reports, Logger: logger, Metrics: metrics}
}

// Filters lists the report views warmed for payload.
func (p ReportWarmupPayload) Filters() []reconciliation.Filter {
	filters := []reconciliation.Filter{{}, {OnlyPending: true}}
	for _, id := range p.BuyerIDs {
		if id > 0 {
			filters = append(filters, reconciliation.Filter{BuyerID: id, OnlyPending: true})
		}
	}
	return filters
}

// Handle processes warm-up tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskReportWarmup)
	start := time.Now()
	logger := j.logger()

	filters := payload.Filters()
	for _, f := range filters {
		// Bound each build so one slow view does not hold the worker.
		fctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := j.Reports.PendingOrders(fctx, f)
		cancel()
		if err != nil {
			logger.Error("warm report", slog.Int64("buyer_id", f.BuyerID), slog.Any("error", err))
			return tracker.End(err)
		}
	}
	logger.Info("completed report warmup", slog.Int("views", len(filters)), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportWarmup))
}
