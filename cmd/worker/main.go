package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/invoicing/internal/app"
	"github.com/odyssey-erp/invoicing/internal/catalog"
	"github.com/odyssey-erp/invoicing/internal/export"
	"github.com/odyssey-erp/invoicing/internal/invoices"
	"github.com/odyssey-erp/invoicing/internal/observability"
	"github.com/odyssey-erp/invoicing/internal/platform/db"
	"github.com/odyssey-erp/invoicing/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	renderer, err := export.NewRenderer(cfg.PDFRenderer, cfg.GotenbergURL)
	if err != nil {
		logger.Error("init pdf renderer", slog.Any("error", err))
		os.Exit(1)
	}
	name := cfg.PDFRenderer
	if name == "" {
		name = "gofpdf"
	}

	catalogService := catalog.NewService(catalog.NewRepository(pool), nil, nil, logger)
	invoiceService := invoices.NewService(invoices.NewRepository(pool), catalogService, invoices.Options{
		Renderer:  export.WithObserver(renderer, name, metrics),
		Formatter: export.NewFormatter(cfg.CurrencySymbol),
		Logger:    logger,
	})
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	archiveJob := jobs.NewArchiveJob(invoiceService, metrics, logger)
	sweepJob := jobs.NewSweepJob(invoiceService, jobClient, cfg.ArchiveSweepBatch, metrics, logger)

	var cron []jobs.CronRegistration
	if cfg.ArchiveSweepCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.ArchiveSweepCron, Task: jobs.NewArchiveSweepTask()})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInvoiceArchivePDF, Handler: archiveJob.Handle},
			{Type: jobs.TaskInvoiceArchiveSweep, Handler: sweepJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
