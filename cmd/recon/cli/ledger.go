package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/odyssey-erp/recon/jobs"
)

// ExitViolations is returned when the scan finds broken ledger entries.
const ExitViolations = 10

// LedgerScanner runs an integrity scan over the order ledger.
type LedgerScanner interface {
	Run(ctx context.Context, limit int) ([]jobs.Violation, error)
}

// LedgerCheckOptions defines available flags for the check-ledger command.
type LedgerCheckOptions struct {
	Limit      int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// LedgerCheckSummary is the JSON form of a scan.
type LedgerCheckSummary struct {
	OK         bool                   `json:"ok"`
	Counts     map[string]int         `json:"counts"`
	Violations []LedgerCheckViolation `json:"violations"`
}

// LedgerCheckViolation is one reported violation.
type LedgerCheckViolation struct {
	Kind        string `json:"kind"`
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Detail      string `json:"detail"`
}

// LedgerCheckCommand scans the ledger and prints the outcome. It returns 0
// for a clean ledger, ExitViolations when violations exist and 1 on error.
func LedgerCheckCommand(ctx context.Context, scanner LedgerScanner, opts LedgerCheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Limit < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "check-ledger: --limit must not be negative")
		return 1
	}
	violations, err := scanner.Run(ctx, opts.Limit)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check-ledger: %v\n", err)
		return 1
	}
	summary := buildLedgerSummary(violations)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check-ledger: encode json: %v\n", err)
			return 1
		}
	} else {
		renderLedgerHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return ExitViolations
	}
	return 0
}

func buildLedgerSummary(violations []jobs.Violation) LedgerCheckSummary {
	summary := LedgerCheckSummary{
		OK:         len(violations) == 0,
		Counts:     make(map[string]int),
		Violations: make([]LedgerCheckViolation, 0, len(violations)),
	}
	for _, v := range violations {
		summary.Counts[v.Kind]++
		summary.Violations = append(summary.Violations, LedgerCheckViolation{
			Kind:        v.Kind,
			OrderID:     v.OrderID,
			OrderNumber: v.OrderNumber,
			Detail:      v.Detail,
		})
	}
	sort.SliceStable(summary.Violations, func(i, j int) bool {
		if summary.Violations[i].OrderNumber == summary.Violations[j].OrderNumber {
			return summary.Violations[i].Kind < summary.Violations[j].Kind
		}
		return summary.Violations[i].OrderNumber < summary.Violations[j].OrderNumber
	})
	return summary
}

func renderLedgerHuman(out io.Writer, summary LedgerCheckSummary) {
	if summary.OK {
		_, _ = fmt.Fprintln(out, "Ledger is consistent.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d violation(s) detected:\n", len(summary.Violations))
	for _, v := range summary.Violations {
		_, _ = fmt.Fprintf(out, " - %s [%s] %s\n", v.OrderNumber, v.Kind, v.Detail)
	}
	kinds := make([]string, 0, len(summary.Counts))
	for kind := range summary.Counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		_, _ = fmt.Fprintf(out, "%s: %d\n", kind, summary.Counts[kind])
	}
}
