package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/garage-inventory/internal/alerts"
	jobmetrics "github.com/odyssey-erp/garage-inventory/internal/jobs"
)

// AlertSweeper runs one alert sweep.
type AlertSweeper interface {
	Sweep(ctx context.Context) (alerts.SweepResult, error)
}

// AlertSweepJob periodically refreshes stock alerts. It never reopens resolved alerts.
type AlertSweepJob struct {
	Sweeper AlertSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAlertSweepJob initialises the alert sweep handler.
func NewAlertSweepJob(sweeper AlertSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *AlertSweepJob {
	return &AlertSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle executes the sweep.
func (j *AlertSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("alert sweep: handler not configured")
	}
	var payload AlertSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskAlertSweep)
	defer func() { err = tracker.End(err) }()

	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskAlertSweep), slog.String("trigger", payload.Trigger))
	start := time.Now()
	result, err := j.Sweeper.Sweep(ctx)
	if err != nil {
		logger.Error("alert sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddSwept(result.Parts)
	logger.Info("alert sweep completed",
		slog.Int("parts", result.Parts),
		slog.Int("raised", result.Raised),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
