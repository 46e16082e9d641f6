package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/inventory"
	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// Repository persists alerts, unique per (part, type).
type Repository interface {
	// Upsert raises or refreshes an alert. When reopen is set, an alert resolved before
	// alert.LastRaisedAt is reopened; otherwise the resolved flag is left alone.
	Upsert(ctx context.Context, alert Alert, reopen bool) (Alert, error)
	Get(ctx context.Context, id int64) (Alert, error)
	List(ctx context.Context, resolved *bool) ([]Alert, error)
	// SetResolved flips the resolved flag, failing with shared.ErrInvalidStateTransition when
	// the alert is already in the requested state.
	SetResolved(ctx context.Context, id int64, resolved bool, actorID int64, at time.Time, note string) (Alert, error)
}

// StockReader exposes the ledger reads the evaluator needs.
type StockReader interface {
	GetCurrentStock(ctx context.Context, partID int64) (inventory.StockLevel, error)
	ListActiveBatches(ctx context.Context, partID int64, locationID *int64) ([]inventory.Batch, error)
}

// PartReader exposes catalog reads.
type PartReader interface {
	Get(ctx context.Context, id int64) (catalog.Part, error)
	ListActiveIDs(ctx context.Context) ([]int64, error)
}

// MetricsPort counts raised alerts.
type MetricsPort interface {
	ObserveAlert(alertType, severity string)
}

// Config tunes evaluation.
type Config struct {
	ExpiryWindow     time.Duration
	SweepConcurrency int
}

// Service keeps stored alerts in line with ledger state.
type Service struct {
	repo    Repository
	stock   StockReader
	parts   PartReader
	logger  *slog.Logger
	cfg     Config
	metrics MetricsPort
	now     func() time.Time
	sweeps  singleflight.Group
}

// Option customises Service.
type Option func(*Service)

// WithMetrics records raised alerts.
func WithMetrics(m MetricsPort) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService builds the alert service.
func NewService(repo Repository, stock StockReader, parts PartReader, logger *slog.Logger, cfg Config, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = DefaultExpiryWindow
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 4
	}
	s := &Service{
		repo:    repo,
		stock:   stock,
		parts:   parts,
		logger:  logger,
		cfg:     cfg,
		metrics: noopMetrics{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StockChanged re-evaluates a part after a committed ledger change. Resolved alerts whose
// condition holds again are reopened.
func (s *Service) StockChanged(ctx context.Context, partID int64) error {
	_, err := s.Refresh(ctx, partID, true)
	return err
}

// Refresh evaluates one part and stores every condition that holds. Conditions that no
// longer hold are left as they are.
func (s *Service) Refresh(ctx context.Context, partID int64, reopen bool) ([]Alert, error) {
	part, err := s.parts.Get(ctx, partID)
	if err != nil {
		return nil, err
	}
	if !part.Active() {
		return nil, nil
	}
	level, err := s.stock.GetCurrentStock(ctx, partID)
	if err != nil {
		return nil, err
	}
	batches, err := s.stock.ListActiveBatches(ctx, partID, nil)
	if err != nil {
		return nil, err
	}
	in := Input{
		PartID:       partID,
		PartCode:     part.Code,
		Quantity:     level.Quantity,
		MinimumStock: part.MinimumStock,
		Now:          s.now(),
		ExpiryWindow: s.cfg.ExpiryWindow,
	}
	for _, b := range batches {
		in.Batches = append(in.Batches, BatchExpiry{BatchNumber: b.BatchNumber, Remaining: b.QuantityRemaining, ExpiryDate: b.ExpiryDate})
	}

	found := Evaluate(in)
	stored := make([]Alert, 0, len(found))
	for _, alert := range found {
		saved, err := s.repo.Upsert(ctx, alert, reopen)
		if err != nil {
			return stored, fmt.Errorf("store %s alert for part %d: %w", alert.Type, partID, err)
		}
		s.metrics.ObserveAlert(string(alert.Type), string(alert.Severity))
		stored = append(stored, saved)
	}
	return stored, nil
}

// Sweep evaluates every active part without reopening resolved alerts. Concurrent callers
// share one run.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	ch := s.sweeps.DoChan("sweep", func() (interface{}, error) {
		return s.sweep(ctx)
	})
	select {
	case <-ctx.Done():
		return SweepResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return SweepResult{}, res.Err
		}
		return res.Val.(SweepResult), nil
	}
}

func (s *Service) sweep(ctx context.Context) (SweepResult, error) {
	ids, err := s.parts.ListActiveIDs(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	var raised, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SweepConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			stored, err := s.Refresh(gctx, id, false)
			raised.Add(int64(len(stored)))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				s.logger.Warn("alert sweep part", slog.Int64("part_id", id), slog.Any("error", err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}
	result := SweepResult{Parts: len(ids), Raised: int(raised.Load()), Failed: int(failed.Load())}
	s.logger.Info("alert sweep finished", slog.Int("parts", result.Parts), slog.Int("raised", result.Raised), slog.Int("failed", result.Failed))
	return result, nil
}

// ListAlerts returns alerts, optionally filtered by resolved state.
func (s *Service) ListAlerts(ctx context.Context, resolved *bool) ([]Alert, error) {
	return s.repo.List(ctx, resolved)
}

// Resolve marks an alert handled by the acting operator.
func (s *Service) Resolve(ctx context.Context, id int64, note string) (Alert, error) {
	return s.setResolved(ctx, id, true, note)
}

// Unresolve reopens an alert.
func (s *Service) Unresolve(ctx context.Context, id int64) (Alert, error) {
	return s.setResolved(ctx, id, false, "")
}

func (s *Service) setResolved(ctx context.Context, id int64, resolved bool, note string) (Alert, error) {
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return Alert{}, err
	}
	if alert.Resolved == resolved {
		return Alert{}, fmt.Errorf("%w: alert %d resolved=%t", shared.ErrInvalidStateTransition, id, resolved)
	}
	return s.repo.SetResolved(ctx, id, resolved, shared.ActorFromContext(ctx), s.now(), note)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAlert(string, string) {}
