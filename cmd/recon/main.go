package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/recon/internal/app"
	"github.com/odyssey-erp/recon/internal/fulfilment"
	"github.com/odyssey-erp/recon/internal/invoicing"
	"github.com/odyssey-erp/recon/internal/numbering"
	"github.com/odyssey-erp/recon/internal/observability"
	"github.com/odyssey-erp/recon/internal/platform/cache"
	"github.com/odyssey-erp/recon/internal/platform/db"
	"github.com/odyssey-erp/recon/internal/reconciliation"
	"github.com/odyssey-erp/recon/internal/shared"
	"github.com/odyssey-erp/recon/jobs"
	"github.com/odyssey-erp/recon/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] != "serve" {
		os.Exit(runCommand(ctx, cfg, logger, os.Args[1:]))
	}

	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		if cfg.LockBackend == app.LockBackendRedis {
			return err
		}
		logger.Warn("redis unavailable, reports served uncached", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var locker shared.Locker = shared.NewKeyedMutex()
	if cfg.LockBackend == app.LockBackendRedis {
		locker = cache.NewRedisLocker(redisClient, cfg.LockTTL, cfg.LockWait)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	numberingRepo := numbering.NewRepository(dbpool, auditLogger)
	numberingService := numbering.NewService(numberingRepo, numberingRepo, logger)

	fulfilmentRepo := fulfilment.NewRepository(dbpool)
	fulfilmentService := fulfilment.NewService(fulfilmentRepo, fulfilment.Options{
		Locker:      locker,
		Numbers:     numberingService,
		OrderSeries: cfg.OrderSeries,
		Recorder:    metrics,
		Logger:      logger,
	})

	invoicingRepo := invoicing.NewRepository(dbpool, auditLogger)
	invoicingService := invoicing.NewService(invoicingRepo, invoicing.Options{
		Parties:  invoicingRepo,
		Products: invoicingRepo,
		Numbers:  numberingService,
		Series:   cfg.InvoiceSeries,
		Seller:   cfg.Seller(),
		Recorder: metrics,
		Logger:   logger,
	})

	reportCache := cache.NewVersionedCache(redisClient, reconciliation.CacheNamespace, cfg.ReportCacheTTL)
	reports := reconciliation.NewService(
		reconciliation.NewSource(dbpool),
		reportCache,
		reconciliation.NewMetrics(metrics.Registerer()),
		logger,
	)

	var invoiceRenderer invoicing.Renderer
	pdfClient, err := report.NewClient(cfg.GotenbergURL)
	if err != nil {
		logger.Warn("pdf renderer disabled", slog.Any("error", err))
	} else {
		renderer, err := report.NewInvoiceRenderer(pdfClient)
		if err != nil {
			return err
		}
		invoiceRenderer = renderer
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts, time.Minute)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	onWrite := func(ctx context.Context) {
		reports.Invalidate(ctx)
		if err := jobClient.EnqueueReportWarmup(ctx, jobs.ReportWarmupPayload{}); err != nil {
			logger.Warn("enqueue report warmup", slog.Any("error", err))
		}
	}

	var pinger report.Pinger
	if pdfClient != nil {
		pinger = pdfClient
	}

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Ready:   readinessChecks(dbpool.Ping, redisClient),

		NumberingHandler:  numbering.NewHandler(numberingService, logger, onWrite),
		FulfilmentHandler: fulfilment.NewHandler(fulfilmentService, logger, onWrite),
		InvoicingHandler: invoicing.NewHandler(invoicingService, invoicing.HandlerOptions{
			Keys:     idempotencyStore,
			Renderer: invoiceRenderer,
			Logger:   logger,
			OnWrite:  onWrite,
		}),
		ReconciliationHandler: reconciliation.NewHandler(reports, logger),
		ReportHandler:         report.NewHandler(pinger, logger),
		JobHandler:            jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

func readinessChecks(pingDB func(context.Context) error, redisClient *redis.Client) []app.ReadinessCheck {
	checks := []app.ReadinessCheck{{Name: "postgres", Check: pingDB}}
	if redisClient != nil {
		checks = append(checks, app.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	return checks
}
