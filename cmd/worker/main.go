package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/garage-inventory/internal/app"
	jobmetrics "github.com/odyssey-erp/garage-inventory/internal/jobs"
	"github.com/odyssey-erp/garage-inventory/internal/platform/db"
	"github.com/odyssey-erp/garage-inventory/jobs"
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

	services, err := app.BuildServices(ctx, cfg, pool, logger, nil)
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	sweepJob := jobs.NewAlertSweepJob(services.Alerts, logger, metrics)
	verifyJob := jobs.NewLedgerVerifyJob(services.Inventory, services.Catalog, logger, metrics)

	sweepTask, err := jobs.NewAlertSweepTask("cron")
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	verifyTask, err := jobs.NewLedgerVerifyTask()
	if err != nil {
		logger.Error("build ledger verify task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAlertSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskLedgerVerify, Handler: verifyJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AlertSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.LedgerVerifyCron, Task: verifyTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
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
