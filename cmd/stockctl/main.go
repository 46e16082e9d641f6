// Command stockctl runs operator tasks against the inventory database and job queue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/garage-inventory/internal/app"
	"github.com/odyssey-erp/garage-inventory/internal/platform/db"
	"github.com/odyssey-erp/garage-inventory/jobs"
	"github.com/odyssey-erp/garage-inventory/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	root := newRootCmd(runtime{
		out: os.Stdout,
		migrator: func() (migrator, error) {
			return db.NewMigrator(migrations.FS, cfg.PGDSN)
		},
		queue: func() (enqueuer, error) {
			return jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), nil
		},
		ledger: func(ctx context.Context) (ledgerRunner, func(), error) {
			services, closeFn, err := connect(ctx, cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			return jobs.NewLedgerVerifyJob(services.Inventory, services.Catalog, logger, nil), closeFn, nil
		},
		seed: func(ctx context.Context) (seedTargets, func(), error) {
			services, closeFn, err := connect(ctx, cfg, logger)
			if err != nil {
				return seedTargets{}, nil, err
			}
			return seedTargets{Locations: services.Locations, Parts: services.Catalog, Stock: services.Inventory}, closeFn, nil
		},
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func connect(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*app.Services, func(), error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	services, err := app.BuildServices(ctx, cfg, pool, logger, nil)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return services, func() {
		_ = services.Close()
		pool.Close()
	}, nil
}
