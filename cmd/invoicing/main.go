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

	"github.com/odyssey-erp/invoicing/internal/app"
	"github.com/odyssey-erp/invoicing/internal/audit"
	audithttp "github.com/odyssey-erp/invoicing/internal/audit/http"
	"github.com/odyssey-erp/invoicing/internal/auth"
	"github.com/odyssey-erp/invoicing/internal/catalog"
	"github.com/odyssey-erp/invoicing/internal/dashboard"
	"github.com/odyssey-erp/invoicing/internal/drafts"
	"github.com/odyssey-erp/invoicing/internal/export"
	"github.com/odyssey-erp/invoicing/internal/invoices"
	"github.com/odyssey-erp/invoicing/internal/observability"
	"github.com/odyssey-erp/invoicing/internal/platform/cache"
	"github.com/odyssey-erp/invoicing/internal/platform/db"
	"github.com/odyssey-erp/invoicing/internal/shared"
	"github.com/odyssey-erp/invoicing/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	metrics.Registerer().MustRegister(db.NewPoolStatsCollector(pool))

	sessionManager := shared.NewSessionManager(redisClient, "invoicing_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(pool)
	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)

	renderer, err := export.NewRenderer(cfg.PDFRenderer, cfg.GotenbergURL)
	if err != nil {
		logger.Error("init pdf renderer", slog.Any("error", err))
		os.Exit(1)
	}
	renderer = export.WithObserver(renderer, rendererName(cfg), metrics)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
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

	catalogService := catalog.NewService(catalog.NewRepository(pool), auditLogger, dashboardCache, logger)
	invoiceService := invoices.NewService(invoices.NewRepository(pool), catalogService, invoices.Options{
		Renderer:  renderer,
		Formatter: export.NewFormatter(cfg.CurrencySymbol),
		Archiver:  jobClient,
		Audit:     auditLogger,
		Cache:     dashboardCache,
		Logger:    logger,
	})
	draftService := drafts.NewService(drafts.NewStore(redisClient, cfg.DraftTTL), invoiceService, logger)
	dashboardService := dashboard.NewService(dashboard.NewRepository(pool), dashboardCache)
	authService := auth.NewService(auth.NewRepository(pool))
	auditService := audit.NewService(audit.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      auth.NewHandler(logger, authService, sessionManager, csrfManager),
		CatalogHandler:   catalog.NewHandler(logger, catalogService),
		InvoiceHandler:   invoices.NewHandler(logger, invoiceService),
		DraftHandler:     drafts.NewHandler(logger, draftService),
		DashboardHandler: dashboard.NewHandler(logger, dashboardService),
		AuditHandler:     audithttp.NewHandler(logger, auditService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
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
}

func rendererName(cfg *app.Config) string {
	if cfg.PDFRenderer == "" {
		return "gofpdf"
	}
	return cfg.PDFRenderer
}
