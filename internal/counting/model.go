package counting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// CheckStatus enumerates physical count lifecycle states.
type CheckStatus string

const (
	CheckDraft      CheckStatus = "DRAFT"
	CheckInProgress CheckStatus = "IN_PROGRESS"
	CheckCompleted  CheckStatus = "COMPLETED"
	CheckCancelled  CheckStatus = "CANCELLED"
)

var checkTransitions = map[CheckStatus][]CheckStatus{
	CheckDraft:      {CheckInProgress, CheckCancelled},
	CheckInProgress: {CheckCompleted, CheckCancelled},
}

// CanTransition reports whether a check may move from s to next.
func (s CheckStatus) CanTransition(next CheckStatus) bool {
	for _, allowed := range checkTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AdjustmentStatus enumerates adjustment decision states.
type AdjustmentStatus string

const (
	AdjustmentPending  AdjustmentStatus = "PENDING"
	AdjustmentApproved AdjustmentStatus = "APPROVED"
	AdjustmentRejected AdjustmentStatus = "REJECTED"
)

// Check is a physical stock count, optionally scoped to a location subtree.
type Check struct {
	ID          int64       `json:"id"`
	Code        string      `json:"code"`
	LocationID  *int64      `json:"location_id,omitempty"`
	Status      CheckStatus `json:"status"`
	Note        string      `json:"note"`
	CreatedBy   int64       `json:"created_by"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	Items       []CheckItem `json:"items"`
}

// CheckItem records the counted quantity of one part.
type CheckItem struct {
	ID             int64           `json:"id"`
	CheckID        int64           `json:"check_id"`
	PartID         int64           `json:"part_id"`
	SystemQuantity decimal.Decimal `json:"system_quantity"`
	ActualQuantity decimal.Decimal `json:"actual_quantity"`
	Discrepancy    decimal.Decimal `json:"discrepancy"`
	IsAdjusted     bool            `json:"is_adjusted"`
	CountedBy      int64           `json:"counted_by"`
	CountedAt      time.Time       `json:"counted_at"`
}

// IsDiscrepancy reports whether the count disagrees with the ledger.
func (i CheckItem) IsDiscrepancy() bool {
	return !i.Discrepancy.IsZero()
}

// Adjustment is a set of signed stock corrections awaiting a decision.
type Adjustment struct {
	ID              int64            `json:"id"`
	Code            string           `json:"code"`
	CheckID         *int64           `json:"check_id,omitempty"`
	LocationID      *int64           `json:"location_id,omitempty"`
	Status          AdjustmentStatus `json:"status"`
	Reason          string           `json:"reason"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	CreatedBy       int64            `json:"created_by"`
	DecidedBy       *int64           `json:"decided_by,omitempty"`
	DecidedAt       *time.Time       `json:"decided_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	Items           []AdjustmentItem `json:"items"`
}

// AdjustmentItem is one part's correction. The snapshots are filled on approval.
type AdjustmentItem struct {
	ID                   int64            `json:"id"`
	AdjustmentID         int64            `json:"adjustment_id"`
	PartID               int64            `json:"part_id"`
	CheckItemID          *int64           `json:"check_item_id,omitempty"`
	QuantityChange       decimal.Decimal  `json:"quantity_change"`
	UnitCost             *decimal.Decimal `json:"unit_cost,omitempty"`
	RestoreBatchID       *int64           `json:"restore_batch_id,omitempty"`
	SystemQuantityBefore *decimal.Decimal `json:"system_quantity_before,omitempty"`
	SystemQuantityAfter  *decimal.Decimal `json:"system_quantity_after,omitempty"`
	TransactionID        *int64           `json:"transaction_id,omitempty"`
}

// CreateCheckInput opens a new count.
type CreateCheckInput struct {
	LocationID *int64
	Note       string
}

// CountInput records one part's counted quantity.
type CountInput struct {
	PartID         int64
	ActualQuantity decimal.Decimal
}

// AdjustmentItemInput is one manual correction. A positive correction with RestoreBatchID
// returns stock to that batch instead of opening a new one.
type AdjustmentItemInput struct {
	PartID         int64
	QuantityChange decimal.Decimal
	UnitCost       *decimal.Decimal
	RestoreBatchID *int64
}

// CreateAdjustmentInput carries a manual adjustment.
type CreateAdjustmentInput struct {
	LocationID *int64
	Reason     string
	Items      []AdjustmentItemInput
}

var (
	// ErrCheckNotFound is returned for unknown check ids.
	ErrCheckNotFound = shared.NewError(shared.ErrReferentialIntegrity, "counting: check not found")
	// ErrAdjustmentNotFound is returned for unknown adjustment ids.
	ErrAdjustmentNotFound = shared.NewError(shared.ErrReferentialIntegrity, "counting: adjustment not found")
	// ErrNoDiscrepancies indicates a completed check has nothing left to adjust.
	ErrNoDiscrepancies = shared.NewError(shared.ErrConflict, "counting: no discrepancies to adjust")
	// ErrItemAlreadyAdjusted indicates a check item was settled by another adjustment.
	ErrItemAlreadyAdjusted = shared.NewError(shared.ErrConflict, "counting: check item already adjusted")
	// ErrInvalidAdjustment indicates a manual adjustment without usable lines.
	ErrInvalidAdjustment = shared.NewError(shared.ErrValidation, "counting: invalid adjustment")
)
