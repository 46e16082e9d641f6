package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/garage-inventory/internal/inventory"
	jobmetrics "github.com/odyssey-erp/garage-inventory/internal/jobs"
)

// ErrLedgerBroken is returned when at least one part failed verification.
var ErrLedgerBroken = errors.New("ledger verification found broken parts")

// LedgerVerifier verifies one part's ledger.
type LedgerVerifier interface {
	VerifyLedger(ctx context.Context, partID int64) (inventory.LedgerReport, error)
}

// PartLister lists the parts to verify.
type PartLister interface {
	ListActiveIDs(ctx context.Context) ([]int64, error)
}

// LedgerSummary aggregates a verification run.
type LedgerSummary struct {
	Parts  int
	Broken []inventory.LedgerReport
}

// LedgerVerifyJob checks transaction chains against batch totals.
type LedgerVerifyJob struct {
	Verifier    LedgerVerifier
	Parts       PartLister
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewLedgerVerifyJob initialises the ledger verification handler.
func NewLedgerVerifyJob(verifier LedgerVerifier, parts PartLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerVerifyJob {
	return &LedgerVerifyJob{Verifier: verifier, Parts: parts, Logger: logger, Metrics: metrics, Concurrency: 4}
}

// Handle executes verification from a queued task. Broken ledgers are not retried.
func (j *LedgerVerifyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Verifier == nil || j.Parts == nil {
		return errors.New("ledger verify: handler not configured")
	}
	var payload LedgerVerifyPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskLedgerVerify)
	defer func() { err = tracker.End(err) }()

	summary, err := j.Run(ctx, payload.PartIDs)
	if err != nil {
		return err
	}
	if len(summary.Broken) > 0 {
		return fmt.Errorf("%w: %d of %d: %w", ErrLedgerBroken, len(summary.Broken), summary.Parts, asynq.SkipRetry)
	}
	return nil
}

// Run verifies the given parts, or every active part when none are given.
func (j *LedgerVerifyJob) Run(ctx context.Context, partIDs []int64) (LedgerSummary, error) {
	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskLedgerVerify))
	start := time.Now()
	if len(partIDs) == 0 {
		ids, err := j.Parts.ListActiveIDs(ctx)
		if err != nil {
			return LedgerSummary{}, err
		}
		partIDs = ids
	}

	var (
		mu     sync.Mutex
		broken []inventory.LedgerReport
	)
	limit := j.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, id := range partIDs {
		id := id
		g.Go(func() error {
			report, err := j.Verifier.VerifyLedger(gctx, id)
			if err != nil {
				return fmt.Errorf("verify part %d: %w", id, err)
			}
			if report.OK() {
				return nil
			}
			logger.Error("ledger verification failed",
				slog.Int64("part_id", id),
				slog.String("batch_total", report.BatchTotal.String()),
				slog.String("chain_balance", report.ChainBalance.String()),
				slog.Int("breaks", len(report.Breaks)),
			)
			mu.Lock()
			broken = append(broken, report)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("ledger verification aborted", slog.Any("error", err))
		return LedgerSummary{}, err
	}
	slices.SortFunc(broken, func(a, b inventory.LedgerReport) int {
		switch {
		case a.PartID < b.PartID:
			return -1
		case a.PartID > b.PartID:
			return 1
		}
		return 0
	})
	j.Metrics.AddLedgerBreaks(len(broken))
	logger.Info("ledger verification completed",
		slog.Int("parts", len(partIDs)),
		slog.Int("broken", len(broken)),
		slog.Duration("duration", time.Since(start)),
	)
	return LedgerSummary{Parts: len(partIDs), Broken: broken}, nil
}
