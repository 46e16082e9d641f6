package counting

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	checks      map[int64]Check
	items       map[int64]CheckItem
	adjustments map[int64]Adjustment
	nextCheck   int64
	nextItem    int64
	nextAdj     int64
	nextAdjItem int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		checks:      make(map[int64]Check),
		items:       make(map[int64]CheckItem),
		adjustments: make(map[int64]Adjustment),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *memoryRepo) CreateCheck(_ context.Context, check Check) (Check, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextCheck++
	check.ID = r.nextCheck
	check.Items = []CheckItem{}
	r.checks[check.ID] = check
	return check, nil
}

func (r *memoryRepo) GetCheck(_ context.Context, id int64) (Check, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	check, ok := r.checks[id]
	if !ok {
		return Check{}, ErrCheckNotFound
	}
	check.Items = []CheckItem{}
	for _, item := range r.items {
		if item.CheckID == id {
			check.Items = append(check.Items, item)
		}
	}
	sort.Slice(check.Items, func(i, j int) bool { return check.Items[i].PartID < check.Items[j].PartID })
	return check, nil
}

func (r *memoryRepo) SetCheckStatus(_ context.Context, id int64, from, to CheckStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	check, ok := r.checks[id]
	if !ok {
		return ErrCheckNotFound
	}
	if check.Status != from {
		return fmt.Errorf("%w: check %d is no longer %s", shared.ErrInvalidStateTransition, id, from)
	}
	check.Status = to
	switch to {
	case CheckInProgress:
		check.StartedAt = &at
	case CheckCompleted:
		check.CompletedAt = &at
	case CheckCancelled:
		check.CancelledAt = &at
	}
	r.checks[id] = check
	return nil
}

func (r *memoryRepo) UpsertCheckItem(_ context.Context, item CheckItem) (CheckItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.checks[item.CheckID].Status != CheckInProgress {
		return CheckItem{}, fmt.Errorf("%w: check %d is not in progress", shared.ErrInvalidStateTransition, item.CheckID)
	}
	for id, existing := range r.items {
		if existing.CheckID == item.CheckID && existing.PartID == item.PartID {
			item.ID = id
			r.items[id] = item
			return item, nil
		}
	}
	r.nextItem++
	item.ID = r.nextItem
	r.items[item.ID] = item
	return item, nil
}

func (r *memoryRepo) MarkCheckItemsAdjusted(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if r.items[id].IsAdjusted {
			return ErrItemAlreadyAdjusted
		}
	}
	for _, id := range ids {
		item := r.items[id]
		item.IsAdjusted = true
		r.items[id] = item
	}
	return nil
}

func (r *memoryRepo) CreateAdjustment(_ context.Context, adj Adjustment) (Adjustment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextAdj++
	adj.ID = r.nextAdj
	adj.Items = slices.Clone(adj.Items)
	for i := range adj.Items {
		r.nextAdjItem++
		adj.Items[i].ID = r.nextAdjItem
		adj.Items[i].AdjustmentID = adj.ID
	}
	r.adjustments[adj.ID] = adj
	return r.cloneAdjustment(adj), nil
}

func (r *memoryRepo) cloneAdjustment(adj Adjustment) Adjustment {
	adj.Items = slices.Clone(adj.Items)
	return adj
}

func (r *memoryRepo) GetAdjustment(_ context.Context, id int64) (Adjustment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	adj, ok := r.adjustments[id]
	if !ok {
		return Adjustment{}, ErrAdjustmentNotFound
	}
	return r.cloneAdjustment(adj), nil
}

func (r *memoryRepo) ListAdjustments(_ context.Context, status AdjustmentStatus) ([]Adjustment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Adjustment
	for _, adj := range r.adjustments {
		if status == "" || adj.Status == status {
			out = append(out, r.cloneAdjustment(adj))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryRepo) DecideAdjustment(_ context.Context, id int64, to AdjustmentStatus, actorID int64, at time.Time, rejectionReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	adj, ok := r.adjustments[id]
	if !ok {
		return ErrAdjustmentNotFound
	}
	if adj.Status != AdjustmentPending {
		return fmt.Errorf("%w: adjustment %d already decided", shared.ErrInvalidStateTransition, id)
	}
	adj.Status = to
	adj.DecidedBy = &actorID
	adj.DecidedAt = &at
	adj.RejectionReason = rejectionReason
	r.adjustments[id] = adj
	return nil
}

func (r *memoryRepo) UpdateAdjustmentItems(_ context.Context, items []AdjustmentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		adj := r.adjustments[item.AdjustmentID]
		for i := range adj.Items {
			if adj.Items[i].ID == item.ID {
				adj.Items[i] = item
			}
		}
		r.adjustments[item.AdjustmentID] = adj
	}
	return nil
}

type approvalLog struct {
	mu   sync.Mutex
	logs []shared.ApprovalLog
}

func (a *approvalLog) Record(_ context.Context, log shared.ApprovalLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *approvalLog) List(_ context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []shared.ApprovalLog
	for _, l := range a.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

func (a *approvalLog) actions() []shared.ApprovalAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]shared.ApprovalAction, len(a.logs))
	for i, l := range a.logs {
		out[i] = l.Action
	}
	return out
}
