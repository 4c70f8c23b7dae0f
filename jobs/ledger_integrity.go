package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/recon/internal/fulfilment"
	jobmetrics "github.com/odyssey-erp/recon/internal/jobs"
	"github.com/odyssey-erp/recon/internal/platform/db"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Violation kinds reported by the integrity scan.
const (
	ViolationConservation     = "conservation"
	ViolationStatusDrift      = "status_drift"
	ViolationCancelledInvoice = "cancelled_invoice_link"
	ViolationCancelledOrder   = "cancelled_order_link"
)

// LedgerRow is the stored ledger state of one order.
type LedgerRow struct {
	OrderID          int64
	OrderNumber      string
	Ordered          decimal.Decimal
	Status           fulfilment.OrderStatus
	Linked           decimal.Decimal
	CancelledInvoice int
}

// Violation is one broken ledger invariant.
type Violation struct {
	Kind        string
	OrderID     int64
	OrderNumber string
	Detail      string
}

// CheckLedger returns the violations in rows.
func CheckLedger(rows []LedgerRow) []Violation {
	var out []Violation
	for _, r := range rows {
		add := func(kind, detail string) {
			out = append(out, Violation{Kind: kind, OrderID: r.OrderID, OrderNumber: r.OrderNumber, Detail: detail})
		}
		if r.Status == fulfilment.StatusCancelled {
			if r.Linked.IsPositive() {
				add(ViolationCancelledOrder, "cancelled order still linked for "+r.Linked.String())
			}
			continue
		}
		if r.Linked.GreaterThan(r.Ordered) {
			add(ViolationConservation, "linked "+r.Linked.String()+" exceeds ordered "+r.Ordered.String())
		}
		if derived := fulfilment.DeriveStatus(r.Ordered, r.Linked); derived != r.Status {
			add(ViolationStatusDrift, "stored "+string(r.Status)+", derived "+string(derived))
		}
		if r.CancelledInvoice > 0 {
			add(ViolationCancelledInvoice, "links to cancelled invoices remain")
		}
	}
	return out
}

// LedgerIntegrityJob scans the order ledger and reports invariant violations.
// It never repairs data.
type LedgerIntegrityJob struct {
	Pool    db.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob initialises the integrity scan handler.
func NewLedgerIntegrityJob(pool db.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity scan.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 50
	}
	_, err := j.Run(ctx, payload.Limit)
	return err
}

// Run scans the ledger, logging up to limit violations individually, and
// returns every violation found.
func (j *LedgerIntegrityJob) Run(ctx context.Context, limit int) ([]Violation, error) {
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskLedgerIntegrity)
	start := time.Now()
	logger := j.logger()

	rows, err := j.load(ctx)
	if err != nil {
		logger.Error("load ledger", slog.Any("error", err))
		return nil, tracker.End(err)
	}
	violations := CheckLedger(rows)

	counts := make(map[string]int)
	for i, v := range violations {
		counts[v.Kind]++
		if i < limit {
			logger.Warn("ledger violation",
				slog.String("kind", v.Kind),
				slog.Int64("order_id", v.OrderID),
				slog.String("order", v.OrderNumber),
				slog.String("detail", v.Detail),
			)
		}
	}
	for kind, n := range counts {
		metrics.AddViolations(kind, n)
	}
	logger.Info("completed ledger integrity scan",
		slog.Int("orders", len(rows)),
		slog.Int("violations", len(violations)),
		slog.Duration("duration", time.Since(start)),
	)
	return violations, tracker.End(nil)
}

func (j *LedgerIntegrityJob) load(ctx context.Context) ([]LedgerRow, error) {
	rows, err := j.Pool.Query(ctx, `
		SELECT o.id, o.order_number, o.quantity, o.status,
			COALESCE(SUM(l.quantity), 0),
			COUNT(i.id) FILTER (WHERE i.status = 'CANCELLED')
		FROM sales_orders o
		LEFT JOIN order_invoice_links l ON l.sales_order_id = o.id
		LEFT JOIN invoices i ON i.id = l.invoice_id
		GROUP BY o.id
		ORDER BY o.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerRow
	for rows.Next() {
		var (
			r      LedgerRow
			status string
		)
		if err := rows.Scan(&r.OrderID, &r.OrderNumber, &r.Ordered, &status, &r.Linked, &r.CancelledInvoice); err != nil {
			return nil, err
		}
		r.Status = fulfilment.OrderStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}
