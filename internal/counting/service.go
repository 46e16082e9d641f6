package counting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/inventory"
	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

const approvalModule = "inventory_adjustment"

// Repository persists checks and adjustments. Implementations join the transaction carried by
// ctx so writes made from an approval finalizer commit with the ledger.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateCheck(ctx context.Context, check Check) (Check, error)
	GetCheck(ctx context.Context, id int64) (Check, error)
	// SetCheckStatus moves a check from one status to another and stamps the matching timestamp.
	// It fails with shared.ErrInvalidStateTransition when the check is no longer in from.
	SetCheckStatus(ctx context.Context, id int64, from, to CheckStatus, at time.Time) error
	// UpsertCheckItem stores a count while the check is IN_PROGRESS, replacing an earlier count
	// of the same part.
	UpsertCheckItem(ctx context.Context, item CheckItem) (CheckItem, error)
	// MarkCheckItemsAdjusted fails with ErrItemAlreadyAdjusted if any item was already settled.
	MarkCheckItemsAdjusted(ctx context.Context, ids []int64) error
	CreateAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error)
	GetAdjustment(ctx context.Context, id int64) (Adjustment, error)
	ListAdjustments(ctx context.Context, status AdjustmentStatus) ([]Adjustment, error)
	// DecideAdjustment moves a PENDING adjustment to a terminal status.
	DecideAdjustment(ctx context.Context, id int64, to AdjustmentStatus, actorID int64, at time.Time, rejectionReason string) error
	UpdateAdjustmentItems(ctx context.Context, items []AdjustmentItem) error
}

// StockPort exposes the ledger operations counting relies on.
type StockPort interface {
	GetPart(ctx context.Context, partID int64) (catalog.Part, error)
	GetBatch(ctx context.Context, batchID int64) (inventory.Batch, error)
	GetCurrentStock(ctx context.Context, partID int64) (inventory.StockLevel, error)
	GetLocationStock(ctx context.Context, partID, locationID int64) (inventory.StockLevel, error)
	ApplyAdjustments(ctx context.Context, adjustmentID int64, lines []inventory.AdjustmentLine, finalize func(ctx context.Context, applied []inventory.AppliedAdjustment) error) ([]inventory.AppliedAdjustment, error)
}

// ApprovalPort records adjustment decisions and lists them back.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the physical count and adjustment workflow.
type Service struct {
	repo      Repository
	stock     StockPort
	locker    shared.Locker
	approvals ApprovalPort
	audit     AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

// Option customises Service.
type Option func(*Service)

// WithApprovals records approve and reject decisions.
func WithApprovals(a ApprovalPort) Option { return func(s *Service) { s.approvals = a } }

// WithAudit records workflow changes in the audit log.
func WithAudit(a AuditPort) Option { return func(s *Service) { s.audit = a } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService builds the counting service.
func NewService(repo Repository, stock StockPort, locker shared.Locker, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:   repo,
		stock:  stock,
		locker: locker,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCheck opens a DRAFT check.
func (s *Service) CreateCheck(ctx context.Context, input CreateCheckInput) (Check, error) {
	now := s.now()
	check, err := s.repo.CreateCheck(ctx, Check{
		Code:       generateCode("CHK", now),
		LocationID: input.LocationID,
		Status:     CheckDraft,
		Note:       strings.TrimSpace(input.Note),
		CreatedBy:  shared.ActorFromContext(ctx),
		CreatedAt:  now,
	})
	if err != nil {
		return Check{}, err
	}
	s.record(ctx, "counting:check:create", "inventory_check", check.ID, map[string]any{"code": check.Code})
	return check, nil
}

// GetCheck returns a check with its items.
func (s *Service) GetCheck(ctx context.Context, id int64) (Check, error) {
	return s.repo.GetCheck(ctx, id)
}

// StartCheck moves a check from DRAFT to IN_PROGRESS.
func (s *Service) StartCheck(ctx context.Context, id int64) (Check, error) {
	return s.transitionCheck(ctx, id, CheckInProgress)
}

// CompleteCheck moves a check from IN_PROGRESS to COMPLETED.
func (s *Service) CompleteCheck(ctx context.Context, id int64) (Check, error) {
	return s.transitionCheck(ctx, id, CheckCompleted)
}

// CancelCheck abandons a DRAFT or IN_PROGRESS check.
func (s *Service) CancelCheck(ctx context.Context, id int64) (Check, error) {
	return s.transitionCheck(ctx, id, CheckCancelled)
}

func (s *Service) transitionCheck(ctx context.Context, id int64, to CheckStatus) (Check, error) {
	check, err := s.repo.GetCheck(ctx, id)
	if err != nil {
		return Check{}, err
	}
	if !check.Status.CanTransition(to) {
		return Check{}, fmt.Errorf("%w: check %d is %s, cannot move to %s", shared.ErrInvalidStateTransition, id, check.Status, to)
	}
	if err := s.repo.SetCheckStatus(ctx, id, check.Status, to, s.now()); err != nil {
		return Check{}, err
	}
	s.record(ctx, "counting:check:"+strings.ToLower(string(to)), "inventory_check", id, map[string]any{"from": check.Status})
	return s.repo.GetCheck(ctx, id)
}

// RecordCount stores the counted quantity of a part against the ledger's current figure.
func (s *Service) RecordCount(ctx context.Context, checkID int64, input CountInput) (CheckItem, error) {
	if input.ActualQuantity.IsNegative() {
		return CheckItem{}, fmt.Errorf("%w: counted quantity must not be negative", inventory.ErrInvalidQuantity)
	}
	if !input.ActualQuantity.IsZero() && !inventory.ValidQuantity(input.ActualQuantity) {
		return CheckItem{}, fmt.Errorf("%w: counted quantity %s exceeds %d decimal places", inventory.ErrInvalidQuantity, input.ActualQuantity, inventory.QuantityPlaces)
	}
	check, err := s.repo.GetCheck(ctx, checkID)
	if err != nil {
		return CheckItem{}, err
	}
	if check.Status != CheckInProgress {
		return CheckItem{}, fmt.Errorf("%w: check %d is %s", shared.ErrInvalidStateTransition, checkID, check.Status)
	}

	var level inventory.StockLevel
	if check.LocationID != nil {
		level, err = s.stock.GetLocationStock(ctx, input.PartID, *check.LocationID)
	} else {
		level, err = s.stock.GetCurrentStock(ctx, input.PartID)
	}
	if err != nil {
		return CheckItem{}, err
	}
	return s.repo.UpsertCheckItem(ctx, CheckItem{
		CheckID:        checkID,
		PartID:         input.PartID,
		SystemQuantity: level.Quantity,
		ActualQuantity: input.ActualQuantity,
		Discrepancy:    input.ActualQuantity.Sub(level.Quantity),
		CountedBy:      shared.ActorFromContext(ctx),
		CountedAt:      s.now(),
	})
}

// CreateAdjustmentFromCheck raises a PENDING adjustment for every discrepant item of a
// completed check that has not been adjusted yet.
func (s *Service) CreateAdjustmentFromCheck(ctx context.Context, checkID int64, reason string) (Adjustment, error) {
	check, err := s.repo.GetCheck(ctx, checkID)
	if err != nil {
		return Adjustment{}, err
	}
	if check.Status != CheckCompleted {
		return Adjustment{}, fmt.Errorf("%w: check %d is %s", shared.ErrInvalidStateTransition, checkID, check.Status)
	}
	var items []AdjustmentItem
	for _, item := range check.Items {
		if !item.IsDiscrepancy() || item.IsAdjusted {
			continue
		}
		id := item.ID
		items = append(items, AdjustmentItem{PartID: item.PartID, CheckItemID: &id, QuantityChange: item.Discrepancy})
	}
	if len(items) == 0 {
		return Adjustment{}, ErrNoDiscrepancies
	}
	if strings.TrimSpace(reason) == "" {
		reason = "Physical count " + check.Code
	}
	return s.createAdjustment(ctx, Adjustment{CheckID: &check.ID, LocationID: check.LocationID, Reason: reason, Items: items})
}

// CreateAdjustment raises a manual PENDING adjustment.
func (s *Service) CreateAdjustment(ctx context.Context, input CreateAdjustmentInput) (Adjustment, error) {
	if len(input.Items) == 0 {
		return Adjustment{}, fmt.Errorf("%w: at least one item required", ErrInvalidAdjustment)
	}
	if strings.TrimSpace(input.Reason) == "" {
		return Adjustment{}, fmt.Errorf("%w: reason required", ErrInvalidAdjustment)
	}
	seen := make(map[int64]struct{}, len(input.Items))
	items := make([]AdjustmentItem, 0, len(input.Items))
	for _, in := range input.Items {
		if !inventory.ValidQuantityChange(in.QuantityChange) {
			return Adjustment{}, fmt.Errorf("%w: change %s for part %d", inventory.ErrInvalidQuantity, in.QuantityChange, in.PartID)
		}
		if in.UnitCost != nil && !inventory.ValidUnitCost(*in.UnitCost) {
			return Adjustment{}, inventory.ErrInvalidUnitCost
		}
		if _, dup := seen[in.PartID]; dup {
			return Adjustment{}, fmt.Errorf("%w: part %d listed twice", ErrInvalidAdjustment, in.PartID)
		}
		seen[in.PartID] = struct{}{}
		if _, err := s.stock.GetPart(ctx, in.PartID); err != nil {
			return Adjustment{}, err
		}
		if in.RestoreBatchID != nil {
			if err := s.checkRestore(ctx, in); err != nil {
				return Adjustment{}, err
			}
		}
		items = append(items, AdjustmentItem{
			PartID:         in.PartID,
			QuantityChange: in.QuantityChange,
			UnitCost:       in.UnitCost,
			RestoreBatchID: in.RestoreBatchID,
		})
	}
	return s.createAdjustment(ctx, Adjustment{LocationID: input.LocationID, Reason: strings.TrimSpace(input.Reason), Items: items})
}

// checkRestore validates a correction that returns stock into an existing batch. Approval
// checks the batch again under the part lock.
func (s *Service) checkRestore(ctx context.Context, in AdjustmentItemInput) error {
	if !in.QuantityChange.IsPositive() {
		return fmt.Errorf("%w: part %d restores a negative quantity", ErrInvalidAdjustment, in.PartID)
	}
	if in.UnitCost != nil {
		return fmt.Errorf("%w: part %d restores at the batch cost, unit cost not allowed", ErrInvalidAdjustment, in.PartID)
	}
	batch, err := s.stock.GetBatch(ctx, *in.RestoreBatchID)
	if err != nil {
		return err
	}
	if batch.PartID != in.PartID {
		return fmt.Errorf("%w: batch %d does not belong to part %d", inventory.ErrBatchNotFound, batch.ID, in.PartID)
	}
	if batch.QuantityRemaining.Add(in.QuantityChange).GreaterThan(batch.QuantityReceived) {
		return fmt.Errorf("%w: batch %d would exceed received quantity %s", inventory.ErrInvalidQuantity, batch.ID, batch.QuantityReceived)
	}
	return nil
}

func (s *Service) createAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	now := s.now()
	adj.Code = generateCode("ADJ", now)
	adj.Status = AdjustmentPending
	adj.CreatedBy = shared.ActorFromContext(ctx)
	adj.CreatedAt = now
	created, err := s.repo.CreateAdjustment(ctx, adj)
	if err != nil {
		return Adjustment{}, err
	}
	if s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   shared.ApprovalRef(approvalModule, created.ID),
			ActorID: created.CreatedBy,
			Action:  shared.ApprovalSubmit,
			Note:    created.Reason,
			At:      now,
		}); err != nil {
			s.logger.Warn("record adjustment submit", slog.Int64("adjustment_id", created.ID), slog.Any("error", err))
		}
	}
	s.record(ctx, "counting:adjustment:create", "inventory_adjustment", created.ID, map[string]any{"items": len(created.Items)})
	return created, nil
}

// GetAdjustment returns an adjustment with its items.
func (s *Service) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	return s.repo.GetAdjustment(ctx, id)
}

// AdjustmentHistory returns the submit and decision entries recorded for an adjustment,
// oldest first. It is empty when no approval recorder is configured.
func (s *Service) AdjustmentHistory(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.GetAdjustment(ctx, id); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	logs, err := s.approvals.List(ctx, approvalModule, shared.ApprovalRef(approvalModule, id))
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	return logs, nil
}

// ListAdjustments returns adjustments, optionally filtered by status.
func (s *Service) ListAdjustments(ctx context.Context, status AdjustmentStatus) ([]Adjustment, error) {
	return s.repo.ListAdjustments(ctx, status)
}

// ApproveAdjustment applies a PENDING adjustment to the ledger. The ledger writes, the
// decision, the item snapshots and the approval log commit together.
func (s *Service) ApproveAdjustment(ctx context.Context, id int64, note string) (Adjustment, error) {
	unlock, err := s.locker.Lock(ctx, shared.AdjustmentLockKey(id))
	if err != nil {
		return Adjustment{}, err
	}
	defer unlock()

	adj, err := s.repo.GetAdjustment(ctx, id)
	if err != nil {
		return Adjustment{}, err
	}
	if adj.Status != AdjustmentPending {
		return Adjustment{}, fmt.Errorf("%w: adjustment %d is %s", shared.ErrInvalidStateTransition, id, adj.Status)
	}

	actor := shared.ActorFromContext(ctx)
	now := s.now()
	lines := make([]inventory.AdjustmentLine, len(adj.Items))
	for i, item := range adj.Items {
		lines[i] = inventory.AdjustmentLine{
			PartID:         item.PartID,
			LocationID:     adj.LocationID,
			Quantity:       item.QuantityChange,
			UnitCost:       item.UnitCost,
			RestoreBatchID: item.RestoreBatchID,
			Note:           adj.Reason,
		}
	}

	_, err = s.stock.ApplyAdjustments(ctx, id, lines, func(ctx context.Context, applied []inventory.AppliedAdjustment) error {
		if err := s.repo.DecideAdjustment(ctx, id, AdjustmentApproved, actor, now, ""); err != nil {
			return err
		}
		var checkItems []int64
		for i := range adj.Items {
			item := &adj.Items[i]
			before, after := applied[i].QuantityBefore, applied[i].QuantityAfter
			txID := applied[i].Transaction.ID
			item.SystemQuantityBefore = &before
			item.SystemQuantityAfter = &after
			item.TransactionID = &txID
			if item.CheckItemID != nil {
				checkItems = append(checkItems, *item.CheckItemID)
			}
		}
		if err := s.repo.UpdateAdjustmentItems(ctx, adj.Items); err != nil {
			return err
		}
		if len(checkItems) > 0 {
			if err := s.repo.MarkCheckItemsAdjusted(ctx, checkItems); err != nil {
				return err
			}
		}
		if s.approvals == nil {
			return nil
		}
		return s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   shared.ApprovalRef(approvalModule, id),
			ActorID: actor,
			Action:  shared.ApprovalApprove,
			Note:    note,
			At:      now,
		})
	})
	if err != nil {
		s.logger.Warn("approve adjustment", slog.Int64("adjustment_id", id), slog.Any("error", err))
		return Adjustment{}, err
	}

	adj.Status = AdjustmentApproved
	adj.DecidedBy = &actor
	adj.DecidedAt = &now
	s.logger.Info("adjustment approved", slog.Int64("adjustment_id", id), slog.Int("items", len(adj.Items)))
	s.record(ctx, "counting:adjustment:approve", "inventory_adjustment", id, map[string]any{"items": len(adj.Items)})
	return adj, nil
}

// RejectAdjustment closes a PENDING adjustment without touching the ledger.
func (s *Service) RejectAdjustment(ctx context.Context, id int64, reason string) (Adjustment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Adjustment{}, fmt.Errorf("%w: rejection reason required", ErrInvalidAdjustment)
	}
	unlock, err := s.locker.Lock(ctx, shared.AdjustmentLockKey(id))
	if err != nil {
		return Adjustment{}, err
	}
	defer unlock()

	adj, err := s.repo.GetAdjustment(ctx, id)
	if err != nil {
		return Adjustment{}, err
	}
	if adj.Status != AdjustmentPending {
		return Adjustment{}, fmt.Errorf("%w: adjustment %d is %s", shared.ErrInvalidStateTransition, id, adj.Status)
	}

	actor := shared.ActorFromContext(ctx)
	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.DecideAdjustment(ctx, id, AdjustmentRejected, actor, now, reason); err != nil {
			return err
		}
		if s.approvals == nil {
			return nil
		}
		return s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   shared.ApprovalRef(approvalModule, id),
			ActorID: actor,
			Action:  shared.ApprovalReject,
			Note:    reason,
			At:      now,
		})
	})
	if err != nil {
		return Adjustment{}, err
	}
	adj.Status = AdjustmentRejected
	adj.RejectionReason = reason
	adj.DecidedBy = &actor
	adj.DecidedAt = &now
	s.record(ctx, "counting:adjustment:reject", "inventory_adjustment", id, map[string]any{"reason": reason})
	return adj, nil
}

// Discrepancies sums counted minus system quantity across a check's items.
func Discrepancies(check Check) decimal.Decimal {
	total := decimal.Zero
	for _, item := range check.Items {
		total = total.Add(item.Discrepancy)
	}
	return total
}

func (s *Service) record(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func generateCode(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, at.UnixNano())
}
