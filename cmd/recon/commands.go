package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/odyssey-erp/recon/cmd/recon/cli"
	"github.com/odyssey-erp/recon/internal/app"
	"github.com/odyssey-erp/recon/internal/platform/db"
	"github.com/odyssey-erp/recon/jobs"
)

const usage = `usage: recon [command]

commands:
  serve                  start the HTTP API (default)
  check-ledger           scan orders for ledger violations
  jobs trigger <task>    enqueue a background task
  jobs stats             show queue counters
  jobs scheduled         list scheduled tasks
`

func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	switch args[0] {
	case "check-ledger":
		return runCheckLedger(ctx, cfg, logger, args[1:])
	case "jobs":
		return runJobs(ctx, cfg, args[1:])
	default:
		_, _ = fmt.Fprint(os.Stderr, usage)
		return 2
	}
}

func runCheckLedger(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("check-ledger", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "violations logged individually")
	asJSON := fs.Bool("json", false, "print a JSON summary")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "check-ledger: %v\n", err)
		return 1
	}
	defer pool.Close()

	job := jobs.NewLedgerIntegrityJob(pool, logger, nil)
	return cli.LedgerCheckCommand(ctx, job, cli.LedgerCheckOptions{Limit: *limit, JSONOutput: *asJSON})
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(os.Stderr, usage)
		return 2
	}
	c := cli.NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)
	defer func() { _ = c.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(os.Stderr, "jobs trigger: task name required")
			return 2
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "scheduled":
		tasks, err := c.ListScheduled(ctx, 20)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			fmt.Printf("%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
		}
	default:
		_, _ = fmt.Fprint(os.Stderr, usage)
		return 2
	}
	return 0
}
