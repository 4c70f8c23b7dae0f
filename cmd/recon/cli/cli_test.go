package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/recon/jobs"
)

type stubScanner struct {
	violations []jobs.Violation
	err        error
	limit      int
}

func (s *stubScanner) Run(_ context.Context, limit int) ([]jobs.Violation, error) {
	s.limit = limit
	return s.violations, s.err
}

func TestLedgerCheckClean(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	scanner := &stubScanner{}
	code := LedgerCheckCommand(context.Background(), scanner, LedgerCheckOptions{Limit: 5, Stdout: stdout, Stderr: stderr})
	require.Zero(t, code)
	assert.Empty(t, stderr.String())
	assert.Contains(t, stdout.String(), "consistent")
	assert.Equal(t, 5, scanner.limit)
}

func TestLedgerCheckJSONViolations(t *testing.T) {
	scanner := &stubScanner{violations: []jobs.Violation{
		{Kind: jobs.ViolationStatusDrift, OrderID: 2, OrderNumber: "SO-002", Detail: "stored PENDING, derived PARTIALLY_INVOICED"},
		{Kind: jobs.ViolationConservation, OrderID: 1, OrderNumber: "SO-001", Detail: "linked 120 exceeds ordered 100"},
	}}
	stdout := new(bytes.Buffer)
	code := LedgerCheckCommand(context.Background(), scanner, LedgerCheckOptions{JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitViolations, code)

	var summary LedgerCheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.False(t, summary.OK)
	require.Len(t, summary.Violations, 2)
	assert.Equal(t, "SO-001", summary.Violations[0].OrderNumber)
	assert.Equal(t, 1, summary.Counts[jobs.ViolationStatusDrift])
}

func TestLedgerCheckErrors(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := LedgerCheckCommand(context.Background(), &stubScanner{err: errors.New("db down")}, LedgerCheckOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "db down")

	code = LedgerCheckCommand(context.Background(), &stubScanner{}, LedgerCheckOptions{Limit: -1, Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	assert.Equal(t, 1, code)
}

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

func TestTriggerKnownJobs(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq, retention: 0}
	for _, name := range []string{jobs.TaskReportWarmup, jobs.TaskLedgerIntegrity, jobs.TaskIdempotencyCleanup} {
		info, err := c.Trigger(context.Background(), name)
		require.NoError(t, err, name)
		assert.Equal(t, name, info.Type)
	}
	require.Len(t, enq.tasks, 3)

	_, err := c.Trigger(context.Background(), "recon:unknown")
	require.Error(t, err)
}

func TestJobsCLIRequiresInspector(t *testing.T) {
	c := &JobsCLI{}
	_, err := c.InspectQueue(context.Background())
	require.Error(t, err)
	_, err = c.ListScheduled(context.Background(), 0)
	require.Error(t, err)
	_, err = c.Trigger(context.Background(), jobs.TaskReportWarmup)
	require.Error(t, err)
}
