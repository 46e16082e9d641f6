package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// PartLookup resolves catalog entries.
type PartLookup interface {
	Get(ctx context.Context, id int64) (catalog.Part, error)
}

// LocationScope expands a location into itself plus every nested location.
type LocationScope interface {
	Scope(ctx context.Context, id int64) ([]int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards retried requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// StockObserver is notified after a part's stock changed and the change committed.
type StockObserver interface {
	StockChanged(ctx context.Context, partID int64) error
}

// MetricsPort receives ledger instrumentation.
type MetricsPort interface {
	ObserveConsumption(method string, cost float64)
	ObserveLockWait(wait time.Duration, err error)
	IncLedgerDrift()
}

// ServiceConfig groups ledger settings.
type ServiceConfig struct {
	DefaultMethod     catalog.CostingMethod
	LockRetryAttempts int
	LockRetryBackoff  time.Duration
}

// Service coordinates the batch ledger, transaction log and costing engine.
type Service struct {
	repo      RepositoryPort
	parts     PartLookup
	locations LocationScope
	locker    shared.Locker
	audit     AuditPort
	idem      IdempotencyPort
	observer  StockObserver
	metrics   MetricsPort
	logger    *slog.Logger
	cfg       ServiceConfig
	now       func() time.Time
}

// Option customises Service.
type Option func(*Service)

// WithAudit sets the audit sink.
func WithAudit(a AuditPort) Option { return func(s *Service) { s.audit = a } }

// WithIdempotency enables idempotency keys on receipts and consumptions.
func WithIdempotency(i IdempotencyPort) Option { return func(s *Service) { s.idem = i } }

// WithMetrics sets the instrumentation sink.
func WithMetrics(m MetricsPort) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLocations enables location-scoped operations.
func WithLocations(l LocationScope) Option { return func(s *Service) { s.locations = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService builds Service.
func NewService(repo RepositoryPort, parts PartLookup, locker shared.Locker, logger *slog.Logger, cfg ServiceConfig, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.DefaultMethod.Valid() {
		cfg.DefaultMethod = catalog.CostingFIFO
	}
	if cfg.LockRetryAttempts < 1 {
		cfg.LockRetryAttempts = 1
	}
	s := &Service{
		repo:    repo,
		parts:   parts,
		locker:  locker,
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

// SetObserver registers the post-commit stock observer.
func (s *Service) SetObserver(o StockObserver) {
	s.observer = o
}

// DefaultMethod returns the organisation-wide costing method.
func (s *Service) DefaultMethod() catalog.CostingMethod {
	return s.cfg.DefaultMethod
}

// ReceiveStock records a receipt as a new batch and a RECEIPT transaction.
func (s *Service) ReceiveStock(ctx context.Context, input ReceiveInput) (Batch, Transaction, error) {
	if !ValidQuantity(input.Quantity) {
		return Batch{}, Transaction{}, ErrInvalidQuantity
	}
	if !ValidUnitCost(input.UnitCost) {
		return Batch{}, Transaction{}, ErrInvalidUnitCost
	}
	if input.Source.Source == "" {
		input.Source.Source = SourcePurchased
	}
	if !input.Source.Source.receivable() {
		return Batch{}, Transaction{}, fmt.Errorf("%w: %s", ErrInvalidSource, input.Source.Source)
	}
	if err := s.requireActivePart(ctx, input.PartID); err != nil {
		return Batch{}, Transaction{}, err
	}
	if err := s.requireLocation(ctx, input.LocationID); err != nil {
		return Batch{}, Transaction{}, err
	}

	done, err := s.claimKey(ctx, input.IdempotencyKey, "inventory:receipt")
	if err != nil {
		return Batch{}, Transaction{}, err
	}

	receivedAt := input.Source.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	batchNumber := strings.TrimSpace(input.Source.BatchNumber)
	if batchNumber == "" {
		batchNumber = fmt.Sprintf("RCV-%d-%d", input.PartID, receivedAt.UnixNano())
	}

	var (
		batch Batch
		txn   Transaction
	)
	err = s.withPartLocks(ctx, []int64{input.PartID}, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			state, err := s.loadState(ctx, tx, input.PartID)
			if err != nil {
				return err
			}
			batch, err = tx.InsertBatch(ctx, Batch{
				PartID:            input.PartID,
				LocationID:        input.LocationID,
				BatchNumber:       batchNumber,
				ReceivedAt:        receivedAt,
				QuantityReceived:  input.Quantity,
				QuantityRemaining: input.Quantity,
				UnitCost:          input.UnitCost,
				Source:            input.Source.Source,
				SupplierID:        input.Source.SupplierID,
				InvoiceRef:        input.Source.InvoiceRef,
				HasInvoice:        strings.TrimSpace(input.Source.InvoiceRef) != "",
				ExpiryDate:        input.Source.ExpiryDate,
			})
			if err != nil {
				return err
			}
			txn, err = tx.InsertTransaction(ctx, link(Transaction{
				PartID:     input.PartID,
				Kind:       KindReceipt,
				Quantity:   input.Quantity,
				UnitPrice:  input.UnitCost,
				SupplierID: input.Source.SupplierID,
				BatchID:    &batch.ID,
				Note:       input.Source.Note,
				ActorID:    shared.ActorFromContext(ctx),
			}, state.before))
			return err
		})
	})
	done(err)
	if err != nil {
		return Batch{}, Transaction{}, err
	}
	s.afterCommit(ctx, txn, map[string]any{"batch_id": batch.ID, "unit_cost": batch.UnitCost.String()})
	return batch, txn, nil
}

// RecordOpeningBalance seeds a part with no history with a single OPENING batch.
func (s *Service) RecordOpeningBalance(ctx context.Context, input OpeningBalanceInput) (Batch, Transaction, error) {
	if !ValidQuantity(input.Quantity) {
		return Batch{}, Transaction{}, ErrInvalidQuantity
	}
	if !ValidUnitCost(input.UnitCost) {
		return Batch{}, Transaction{}, ErrInvalidUnitCost
	}
	if err := s.requireActivePart(ctx, input.PartID); err != nil {
		return Batch{}, Transaction{}, err
	}
	if err := s.requireLocation(ctx, input.LocationID); err != nil {
		return Batch{}, Transaction{}, err
	}
	asOf := input.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}

	var (
		batch Batch
		txn   Transaction
	)
	err := s.withPartLocks(ctx, []int64{input.PartID}, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.LockPart(ctx, input.PartID); err != nil {
				return err
			}
			last, err := tx.LastTransaction(ctx, input.PartID)
			if err != nil {
				return err
			}
			existing, err := tx.ListBatches(ctx, input.PartID, false)
			if err != nil {
				return err
			}
			if last != nil || len(existing) > 0 {
				return fmt.Errorf("%w: part %d", ErrOpeningBalanceExists, input.PartID)
			}
			batch, err = tx.InsertBatch(ctx, Batch{
				PartID:            input.PartID,
				LocationID:        input.LocationID,
				BatchNumber:       fmt.Sprintf("OPEN-%d", input.PartID),
				ReceivedAt:        asOf,
				QuantityReceived:  input.Quantity,
				QuantityRemaining: input.Quantity,
				UnitCost:          input.UnitCost,
				Source:            SourceOpening,
			})
			if err != nil {
				return err
			}
			txn, err = tx.InsertTransaction(ctx, link(Transaction{
				PartID:    input.PartID,
				Kind:      KindOpeningBalance,
				Quantity:  input.Quantity,
				UnitPrice: input.UnitCost,
				BatchID:   &batch.ID,
				Note:      "opening balance",
				ActorID:   shared.ActorFromContext(ctx),
			}, decimal.Zero))
			return err
		})
	})
	if err != nil {
		return Batch{}, Transaction{}, err
	}
	s.afterCommit(ctx, txn, map[string]any{"batch_id": batch.ID, "unit_cost": batch.UnitCost.String()})
	return batch, txn, nil
}

// ConsumePart draws quantity for a job, costs it with the part's costing method and
// records the CONSUMPTION transaction plus one usage row per batch drawn. Nothing is
// written when stock is insufficient.
func (s *Service) ConsumePart(ctx context.Context, input ConsumeInput) (Consumption, error) {
	if !ValidQuantity(input.Quantity) {
		return Consumption{}, ErrInvalidQuantity
	}
	if input.JobRef == uuid.Nil {
		return Consumption{}, ErrInvalidJobRef
	}
	part, err := s.parts.Get(ctx, input.PartID)
	if err != nil {
		return Consumption{}, err
	}
	if !part.Active() {
		return Consumption{}, fmt.Errorf("%w: part %d", catalog.ErrPartInactive, part.ID)
	}
	scope, err := s.scope(ctx, input.LocationID)
	if err != nil {
		return Consumption{}, err
	}
	method := part.EffectiveMethod(s.cfg.DefaultMethod)

	done, err := s.claimKey(ctx, input.IdempotencyKey, "inventory:consumption")
	if err != nil {
		return Consumption{}, err
	}

	var result Consumption
	err = s.withPartLocks(ctx, []int64{input.PartID}, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			state, err := s.loadState(ctx, tx, input.PartID)
			if err != nil {
				return err
			}
			plan, err := PlanConsumption(method, inScope(state.active, scope), input.Quantity)
			if err != nil {
				return fmt.Errorf("consume part %d: %w", input.PartID, err)
			}
			if err := s.drawDown(ctx, tx, state, plan.Allocations); err != nil {
				return err
			}
			jobRef := input.JobRef
			txn, err := tx.InsertTransaction(ctx, link(Transaction{
				PartID:    input.PartID,
				Kind:      KindConsumption,
				Quantity:  input.Quantity.Neg(),
				UnitPrice: blendedCost(plan.Allocations),
				JobRef:    &jobRef,
				Note:      input.Note,
				ActorID:   shared.ActorFromContext(ctx),
			}, state.before))
			if err != nil {
				return err
			}
			usages := make([]UsageRecord, 0, len(plan.Allocations))
			for _, a := range plan.Allocations {
				usages = append(usages, UsageRecord{
					TransactionID: txn.ID,
					JobRef:        jobRef,
					PartID:        input.PartID,
					BatchID:       a.BatchID,
					Quantity:      a.Quantity,
					UnitCost:      a.UnitCost,
					TotalCost:     a.Total(),
					Method:        method,
				})
			}
			if err := tx.InsertUsages(ctx, usages); err != nil {
				return err
			}
			result = Consumption{
				TransactionID: txn.ID,
				PartID:        input.PartID,
				JobRef:        jobRef,
				Method:        method,
				Allocations:   plan.Allocations,
				TotalCost:     plan.Total,
			}
			return nil
		})
	})
	done(err)
	if err != nil {
		return Consumption{}, err
	}
	cost, _ := result.TotalCost.Float64()
	s.metrics.ObserveConsumption(string(method), cost)
	s.afterCommit(ctx, Transaction{ID: result.TransactionID, PartID: input.PartID, Kind: KindConsumption, Quantity: input.Quantity.Neg()},
		map[string]any{"job_ref": input.JobRef.String(), "total_cost": result.TotalCost.String(), "method": string(method)})
	return result, nil
}

// ApplyAdjustments applies approved count corrections for adjustmentID in one transaction.
// Part locks are taken in ascending part id order. finalize runs inside the same
// transaction after every line is applied; an error from it rolls everything back.
func (s *Service) ApplyAdjustments(ctx context.Context, adjustmentID int64, lines []AdjustmentLine, finalize func(ctx context.Context, applied []AppliedAdjustment) error) ([]AppliedAdjustment, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidQuantity
	}
	partIDs := make([]int64, 0, len(lines))
	for _, line := range lines {
		if !ValidQuantityChange(line.Quantity) {
			return nil, fmt.Errorf("%w: adjustment of %s for part %d", ErrInvalidQuantity, line.Quantity, line.PartID)
		}
		if line.UnitCost != nil && !ValidUnitCost(*line.UnitCost) {
			return nil, ErrInvalidUnitCost
		}
		if _, err := s.parts.Get(ctx, line.PartID); err != nil {
			return nil, err
		}
		partIDs = append(partIDs, line.PartID)
	}
	scopes := make([][]int64, len(lines))
	for i, line := range lines {
		scope, err := s.scope(ctx, line.LocationID)
		if err != nil {
			return nil, err
		}
		scopes[i] = scope
	}

	var applied []AppliedAdjustment
	err := s.withPartLocks(ctx, partIDs, func() error {
		applied = applied[:0]
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			for i, line := range lines {
				a, err := s.applyLine(ctx, tx, adjustmentID, line, scopes[i])
				if err != nil {
					return err
				}
				applied = append(applied, a)
			}
			if finalize != nil {
				return finalize(ctx, applied)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	for _, a := range applied {
		s.afterCommit(ctx, a.Transaction, map[string]any{"adjustment_id": adjustmentID})
	}
	return applied, nil
}

func (s *Service) applyLine(ctx context.Context, tx TxRepository, adjustmentID int64, line AdjustmentLine, scope []int64) (AppliedAdjustment, error) {
	state, err := s.loadState(ctx, tx, line.PartID)
	if err != nil {
		return AppliedAdjustment{}, err
	}
	adjID := adjustmentID
	txn := Transaction{
		PartID:       line.PartID,
		Kind:         KindAdjustment,
		Quantity:     line.Quantity,
		AdjustmentID: &adjID,
		Note:         line.Note,
		ActorID:      shared.ActorFromContext(ctx),
	}

	switch {
	case line.Quantity.IsNegative():
		allocs, err := planReduction(inScope(state.active, scope), line.Quantity.Neg())
		if err != nil {
			return AppliedAdjustment{}, fmt.Errorf("adjust part %d: %w", line.PartID, err)
		}
		if err := s.drawDown(ctx, tx, state, allocs); err != nil {
			return AppliedAdjustment{}, err
		}
		txn.UnitPrice = blendedCost(allocs)
	case line.RestoreBatchID != nil:
		batch, err := tx.GetBatch(ctx, *line.RestoreBatchID)
		if err != nil {
			return AppliedAdjustment{}, err
		}
		if batch.PartID != line.PartID {
			return AppliedAdjustment{}, fmt.Errorf("%w: batch %d does not belong to part %d", ErrBatchNotFound, batch.ID, line.PartID)
		}
		if err := batch.restoreQuantity(line.Quantity); err != nil {
			return AppliedAdjustment{}, err
		}
		if err := tx.UpdateBatchRemaining(ctx, batch.ID, batch.QuantityRemaining); err != nil {
			return AppliedAdjustment{}, err
		}
		txn.UnitPrice = batch.UnitCost
		txn.BatchID = &batch.ID
	default:
		all, err := tx.ListBatches(ctx, line.PartID, false)
		if err != nil {
			return AppliedAdjustment{}, err
		}
		var newest *Batch
		if len(all) > 0 {
			newest = &all[len(all)-1]
		}
		cost := positiveAdjustmentCost(line.UnitCost, state.active, newest)
		batch, err := tx.InsertBatch(ctx, Batch{
			PartID:            line.PartID,
			LocationID:        line.LocationID,
			BatchNumber:       fmt.Sprintf("ADJ-%d-%d", adjustmentID, line.PartID),
			ReceivedAt:        s.now(),
			QuantityReceived:  line.Quantity,
			QuantityRemaining: line.Quantity,
			UnitCost:          cost,
			Source:            SourceAdjustment,
		})
		if err != nil {
			return AppliedAdjustment{}, err
		}
		txn.UnitPrice = cost
		txn.BatchID = &batch.ID
	}

	inserted, err := tx.InsertTransaction(ctx, link(txn, state.before))
	if err != nil {
		return AppliedAdjustment{}, err
	}
	return AppliedAdjustment{
		Line:           line,
		Transaction:    inserted,
		QuantityBefore: inserted.QuantityBefore,
		QuantityAfter:  inserted.QuantityAfter,
	}, nil
}

// GetPart returns the catalog entry of a ledger part.
func (s *Service) GetPart(ctx context.Context, partID int64) (catalog.Part, error) {
	return s.parts.Get(ctx, partID)
}

// GetBatch returns one batch, drawn down or not.
func (s *Service) GetBatch(ctx context.Context, batchID int64) (Batch, error) {
	return s.repo.GetBatch(ctx, batchID)
}

// GetCurrentStock derives stock from active batches and cross-checks the transaction chain.
// Drift is logged and counted but the batch-derived figure is returned.
func (s *Service) GetCurrentStock(ctx context.Context, partID int64) (StockLevel, error) {
	if _, err := s.parts.Get(ctx, partID); err != nil {
		return StockLevel{}, err
	}
	active, err := s.repo.ListBatches(ctx, partID, true)
	if err != nil {
		return StockLevel{}, err
	}
	last, err := s.repo.LastTransaction(ctx, partID)
	if err != nil {
		return StockLevel{}, err
	}
	level := StockLevel{
		PartID:       partID,
		Quantity:     SumRemaining(active),
		Value:        StockValue(active),
		ChainBalance: chainBalance(last),
	}
	level.Consistent = level.Quantity.Equal(level.ChainBalance)
	if !level.Consistent {
		s.metrics.IncLedgerDrift()
		s.logger.Error("inventory ledger drift",
			slog.Int64("part_id", partID),
			slog.String("batch_total", level.Quantity.String()),
			slog.String("chain_balance", level.ChainBalance.String()))
	}
	return level, nil
}

// GetLocationStock derives stock held in a location and its nested locations.
func (s *Service) GetLocationStock(ctx context.Context, partID, locationID int64) (StockLevel, error) {
	if _, err := s.parts.Get(ctx, partID); err != nil {
		return StockLevel{}, err
	}
	scope, err := s.scope(ctx, &locationID)
	if err != nil {
		return StockLevel{}, err
	}
	active, err := s.repo.ListBatches(ctx, partID, true)
	if err != nil {
		return StockLevel{}, err
	}
	scoped := inScope(active, scope)
	return StockLevel{
		PartID:     partID,
		LocationID: &locationID,
		Quantity:   SumRemaining(scoped),
		Value:      StockValue(scoped),
		Consistent: true,
	}, nil
}

// ListActiveBatches returns batches with stock left, oldest first, optionally scoped.
func (s *Service) ListActiveBatches(ctx context.Context, partID int64, locationID *int64) ([]Batch, error) {
	if _, err := s.parts.Get(ctx, partID); err != nil {
		return nil, err
	}
	scope, err := s.scope(ctx, locationID)
	if err != nil {
		return nil, err
	}
	batches, err := s.repo.ListBatches(ctx, partID, true)
	if err != nil {
		return nil, err
	}
	return SortActive(inScope(batches, scope)), nil
}

// QueryHistory lists a part's transactions in append order.
func (s *Service) QueryHistory(ctx context.Context, filter HistoryFilter) ([]Transaction, error) {
	if _, err := s.parts.Get(ctx, filter.PartID); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 200
	}
	return s.repo.ListTransactions(ctx, filter)
}

// GetCOGSForJob totals the parts cost booked against a job.
func (s *Service) GetCOGSForJob(ctx context.Context, jobRef uuid.UUID) (JobCOGS, error) {
	if jobRef == uuid.Nil {
		return JobCOGS{}, ErrInvalidJobRef
	}
	usages, err := s.repo.ListUsagesByJob(ctx, jobRef)
	if err != nil {
		return JobCOGS{}, err
	}
	cogs := JobCOGS{JobRef: jobRef, TotalCost: decimal.Zero, Lines: usages}
	for _, u := range usages {
		cogs.TotalCost = cogs.TotalCost.Add(u.TotalCost)
	}
	return cogs, nil
}

const verifyPageSize = 1000

// VerifyLedger walks a part's full transaction chain and compares it with batch totals.
func (s *Service) VerifyLedger(ctx context.Context, partID int64) (LedgerReport, error) {
	if _, err := s.parts.Get(ctx, partID); err != nil {
		return LedgerReport{}, err
	}
	var txs []Transaction
	var afterID int64
	for {
		page, err := s.repo.ListTransactions(ctx, HistoryFilter{PartID: partID, AfterID: afterID, Limit: verifyPageSize})
		if err != nil {
			return LedgerReport{}, err
		}
		txs = append(txs, page...)
		if len(page) < verifyPageSize {
			break
		}
		afterID = page[len(page)-1].ID
	}
	active, err := s.repo.ListBatches(ctx, partID, true)
	if err != nil {
		return LedgerReport{}, err
	}
	report := VerifyChain(partID, txs, SumRemaining(active))
	if !report.OK() {
		s.metrics.IncLedgerDrift()
	}
	return report, nil
}

// partState is a part's ledger as seen inside a locked transaction.
type partState struct {
	active []Batch
	before decimal.Decimal
}

// loadState locks the part row, reads its active batches and verifies the chain head
// against them before any mutation.
func (s *Service) loadState(ctx context.Context, tx TxRepository, partID int64) (partState, error) {
	if err := tx.LockPart(ctx, partID); err != nil {
		return partState{}, err
	}
	batches, err := tx.ListBatches(ctx, partID, true)
	if err != nil {
		return partState{}, err
	}
	active := SortActive(batches)
	last, err := tx.LastTransaction(ctx, partID)
	if err != nil {
		return partState{}, err
	}
	before, err := verifyChainHead(partID, last, SumRemaining(active))
	if err != nil {
		s.metrics.IncLedgerDrift()
		s.logger.Error("refusing ledger write", slog.Int64("part_id", partID), slog.Any("error", err))
		return partState{}, err
	}
	return partState{active: active, before: before}, nil
}

func (s *Service) drawDown(ctx context.Context, tx TxRepository, state partState, allocs []Allocation) error {
	byID := make(map[int64]*Batch, len(state.active))
	for i := range state.active {
		byID[state.active[i].ID] = &state.active[i]
	}
	for _, a := range allocs {
		b, ok := byID[a.BatchID]
		if !ok {
			return fmt.Errorf("%w: %d", ErrBatchNotFound, a.BatchID)
		}
		if err := b.drawDown(a.Quantity); err != nil {
			return err
		}
		if err := tx.UpdateBatchRemaining(ctx, b.ID, b.QuantityRemaining); err != nil {
			return err
		}
	}
	return nil
}

// withPartLocks runs fn holding the given part locks, retrying lock timeouts.
func (s *Service) withPartLocks(ctx context.Context, partIDs []int64, fn func() error) error {
	return shared.RetryOnLockTimeout(ctx, s.cfg.LockRetryAttempts, s.cfg.LockRetryBackoff, func() error {
		start := time.Now()
		release, err := shared.LockParts(ctx, s.locker, partIDs)
		s.metrics.ObserveLockWait(time.Since(start), err)
		if err != nil {
			return err
		}
		defer release()
		return fn()
	})
}

func (s *Service) requireActivePart(ctx context.Context, partID int64) error {
	part, err := s.parts.Get(ctx, partID)
	if err != nil {
		return err
	}
	if !part.Active() {
		return fmt.Errorf("%w: part %d", catalog.ErrPartInactive, partID)
	}
	return nil
}

func (s *Service) requireLocation(ctx context.Context, locationID *int64) error {
	_, err := s.scope(ctx, locationID)
	return err
}

// scope resolves a location to its subtree. A nil location means no scoping.
func (s *Service) scope(ctx context.Context, locationID *int64) ([]int64, error) {
	if locationID == nil {
		return nil, nil
	}
	if s.locations == nil {
		return nil, errors.New("inventory: location scoping not configured")
	}
	return s.locations.Scope(ctx, *locationID)
}

// claimKey reserves an idempotency key. The returned func releases the key when the
// guarded operation failed so the client can retry.
func (s *Service) claimKey(ctx context.Context, key, module string) (func(error), error) {
	if s.idem == nil || key == "" {
		return func(error) {}, nil
	}
	if err := s.idem.CheckAndInsert(ctx, key, module); err != nil {
		return nil, err
	}
	return func(opErr error) {
		if opErr == nil {
			return
		}
		if err := s.idem.Delete(ctx, key, module); err != nil {
			s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}

// afterCommit records audit and notifies the observer. Failures never undo the movement.
func (s *Service) afterCommit(ctx context.Context, txn Transaction, meta map[string]any) {
	if s.audit != nil {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["part_id"] = txn.PartID
		meta["quantity"] = txn.Quantity.String()
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  shared.ActorFromContext(ctx),
			Action:   fmt.Sprintf("inventory:%s", txn.Kind),
			Entity:   "stock_transaction",
			EntityID: fmt.Sprintf("%d", txn.ID),
			Meta:     meta,
		}); err != nil {
			s.logger.Warn("inventory audit", slog.Any("error", err))
		}
	}
	if s.observer != nil {
		if err := s.observer.StockChanged(ctx, txn.PartID); err != nil {
			s.logger.Warn("stock observer", slog.Int64("part_id", txn.PartID), slog.Any("error", err))
		}
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveConsumption(string, float64)   {}
func (noopMetrics) ObserveLockWait(time.Duration, error) {}
func (noopMetrics) IncLedgerDrift()                      {}
