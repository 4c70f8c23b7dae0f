package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskReportWarmup rebuilds cached pending-orders reports after a write.
	TaskReportWarmup = "recon:report_warmup"
	// TaskLedgerIntegrity scans every order for ledger violations.
	TaskLedgerIntegrity = "recon:ledger_integrity"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "recon:idempotency_cleanup"
)

// ReportWarmupPayload selects the buyers whose report views are rebuilt in
// addition to the global ones.
type ReportWarmupPayload struct {
	BuyerIDs []int64 `json:"buyer_ids,omitempty"`
}

// NewReportWarmupTask constructs a warm-up task.
func NewReportWarmupTask(payload ReportWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, data), nil
}

// LedgerIntegrityPayload configures an integrity scan.
type LedgerIntegrityPayload struct {
	// Limit caps the violations logged individually; all are counted.
	Limit int `json:"limit"`
}

// NewLedgerIntegrityTask constructs an integrity scan task.
func NewLedgerIntegrityTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerIntegrityPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// IdempotencyCleanupPayload sets the key retention.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
