package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/garage-inventory/internal/alerts"
	"github.com/odyssey-erp/garage-inventory/internal/app"
	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/counting"
	"github.com/odyssey-erp/garage-inventory/internal/inventory"
	"github.com/odyssey-erp/garage-inventory/internal/locations"
	"github.com/odyssey-erp/garage-inventory/internal/observability"
	"github.com/odyssey-erp/garage-inventory/internal/platform/db"
	"github.com/odyssey-erp/garage-inventory/jobs"
	"github.com/odyssey-erp/garage-inventory/migrations"
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

	if cfg.MigrateOnStart {
		if err := migrateUp(cfg.PGDSN); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	metrics := observability.NewMetrics()

	services, err := app.BuildServices(ctx, cfg, dbpool, logger, metrics)
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalog.NewHandler(logger, services.Catalog),
		LocationHandler:  locations.NewHandler(logger, services.Locations),
		InventoryHandler: inventory.NewHandler(logger, services.Inventory),
		CountingHandler:  counting.NewHandler(logger, services.Counting),
		AlertHandler:     alerts.NewHandler(logger, services.Alerts),
		QueueHandler:     jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("costing_method", cfg.CostingMethod),
			slog.String("lock_backend", cfg.LockBackend))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

func migrateUp(dsn string) error {
	m, err := db.NewMigrator(migrations.FS, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
