package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/invoicing/cmd/invoicectl/cli"
	"github.com/odyssey-erp/invoicing/internal/app"
	"github.com/odyssey-erp/invoicing/internal/auth"
	"github.com/odyssey-erp/invoicing/internal/catalog"
	"github.com/odyssey-erp/invoicing/internal/export"
	"github.com/odyssey-erp/invoicing/internal/invoices"
	"github.com/odyssey-erp/invoicing/internal/platform/db"
	"github.com/odyssey-erp/invoicing/jobs"
)

type poolMigrator struct {
	pool db.Pool
}

func (m poolMigrator) Migrate(ctx context.Context) ([]int, error) {
	migrations, err := db.Migrations()
	if err != nil {
		return nil, err
	}
	return db.Migrate(ctx, m.pool, migrations)
}

func open(ctx context.Context) (*cli.Deps, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	renderer, err := export.NewRenderer(cfg.PDFRenderer, cfg.GotenbergURL)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})

	catalogService := catalog.NewService(catalog.NewRepository(pool), nil, nil, logger)
	invoiceService := invoices.NewService(invoices.NewRepository(pool), catalogService, invoices.Options{
		Renderer:  renderer,
		Formatter: export.NewFormatter(cfg.CurrencySymbol),
		Logger:    logger,
	})

	deps := &cli.Deps{
		Migrator: poolMigrator{pool: pool},
		Users:    auth.NewService(auth.NewRepository(pool)),
		Invoices: invoiceService,
		Jobs:     jobClient,
	}
	closeFn := func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
		pool.Close()
	}
	return deps, closeFn, nil
}

func main() {
	if err := cli.NewRootCommand(open).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
