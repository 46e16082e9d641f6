package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// SourceType records where a batch came from.
type SourceType string

const (
	// SourcePurchased batches were bought from a supplier.
	SourcePurchased SourceType = "PURCHASED"
	// SourceUsed batches are second-hand parts taken into stock.
	SourceUsed SourceType = "USED"
	// SourceSalvage batches were recovered from scrapped vehicles.
	SourceSalvage SourceType = "SALVAGE"
	// SourceOpening batches carry a part's opening balance.
	SourceOpening SourceType = "OPENING"
	// SourceAdjustment batches were created by an approved positive adjustment.
	SourceAdjustment SourceType = "ADJUSTMENT"
)

func (s SourceType) receivable() bool {
	switch s {
	case SourcePurchased, SourceUsed, SourceSalvage:
		return true
	}
	return false
}

// TransactionKind enumerates stock transaction types.
type TransactionKind string

const (
	// KindReceipt is an inbound receipt of a new batch.
	KindReceipt TransactionKind = "RECEIPT"
	// KindConsumption draws stock for a job.
	KindConsumption TransactionKind = "CONSUMPTION"
	// KindAdjustment applies an approved count correction.
	KindAdjustment TransactionKind = "ADJUSTMENT"
	// KindOpeningBalance seeds a part's stock.
	KindOpeningBalance TransactionKind = "OPENING_BALANCE"
)

// Batch is one receipt of a part at a single unit cost.
type Batch struct {
	ID                int64           `json:"id"`
	PartID            int64           `json:"part_id"`
	LocationID        *int64          `json:"location_id,omitempty"`
	BatchNumber       string          `json:"batch_number"`
	ReceivedAt        time.Time       `json:"received_at"`
	QuantityReceived  decimal.Decimal `json:"quantity_received"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	Source            SourceType      `json:"source"`
	SupplierID        *int64          `json:"supplier_id,omitempty"`
	InvoiceRef        string          `json:"invoice_ref,omitempty"`
	HasInvoice        bool            `json:"has_invoice"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Transaction is an append-only stock movement. QuantityBefore and QuantityAfter are the
// part's aggregate stock around the movement.
type Transaction struct {
	ID             int64           `json:"id"`
	PartID         int64           `json:"part_id"`
	Kind           TransactionKind `json:"kind"`
	Quantity       decimal.Decimal `json:"quantity"`
	QuantityBefore decimal.Decimal `json:"quantity_before"`
	QuantityAfter  decimal.Decimal `json:"quantity_after"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	JobRef         *uuid.UUID      `json:"job_ref,omitempty"`
	SupplierID     *int64          `json:"supplier_id,omitempty"`
	BatchID        *int64          `json:"batch_id,omitempty"`
	AdjustmentID   *int64          `json:"adjustment_id,omitempty"`
	Note           string          `json:"note,omitempty"`
	ActorID        int64           `json:"actor_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Allocation is the quantity drawn from one batch and the unit cost charged for it.
type Allocation struct {
	BatchID  int64           `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// Total returns quantity × unit cost rounded to CostPlaces, the precision usage rows keep.
func (a Allocation) Total() decimal.Decimal {
	return a.Quantity.Mul(a.UnitCost).Round(CostPlaces)
}

// Consumption is the costed result of consuming a part for a job.
type Consumption struct {
	TransactionID int64                 `json:"transaction_id"`
	PartID        int64                 `json:"part_id"`
	JobRef        uuid.UUID             `json:"job_ref"`
	Method        catalog.CostingMethod `json:"costing_method"`
	Allocations   []Allocation          `json:"allocations"`
	TotalCost     decimal.Decimal       `json:"total_cost"`
}

// UsageRecord links a job to the batch a consumption drew from.
type UsageRecord struct {
	ID            int64                 `json:"id"`
	TransactionID int64                 `json:"transaction_id"`
	JobRef        uuid.UUID             `json:"job_ref"`
	PartID        int64                 `json:"part_id"`
	BatchID       int64                 `json:"batch_id"`
	Quantity      decimal.Decimal       `json:"quantity"`
	UnitCost      decimal.Decimal       `json:"unit_cost"`
	TotalCost     decimal.Decimal       `json:"total_cost"`
	Method        catalog.CostingMethod `json:"costing_method"`
	CreatedAt     time.Time             `json:"created_at"`
}

// JobCOGS aggregates parts cost booked against a job.
type JobCOGS struct {
	JobRef    uuid.UUID       `json:"job_ref"`
	TotalCost decimal.Decimal `json:"total_cost"`
	Lines     []UsageRecord   `json:"lines"`
}

// SourceInfo describes a receipt's provenance.
type SourceInfo struct {
	Source      SourceType `json:"source"`
	BatchNumber string     `json:"batch_number"`
	SupplierID  *int64     `json:"supplier_id"`
	InvoiceRef  string     `json:"invoice_ref"`
	ExpiryDate  *time.Time `json:"expiry_date"`
	ReceivedAt  time.Time  `json:"received_at"`
	Note        string     `json:"note"`
}

// ReceiveInput carries a stock receipt.
type ReceiveInput struct {
	PartID         int64
	LocationID     *int64
	Quantity       decimal.Decimal
	UnitCost       decimal.Decimal
	Source         SourceInfo
	IdempotencyKey string
}

// OpeningBalanceInput seeds a part that has no history yet.
type OpeningBalanceInput struct {
	PartID     int64
	LocationID *int64
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	AsOf       time.Time
}

// ConsumeInput requests parts for a job.
type ConsumeInput struct {
	PartID         int64
	LocationID     *int64
	Quantity       decimal.Decimal
	JobRef         uuid.UUID
	Note           string
	IdempotencyKey string
}

// AdjustmentLine is one signed stock correction applied by an approved adjustment.
type AdjustmentLine struct {
	PartID     int64
	LocationID *int64
	Quantity   decimal.Decimal
	// UnitCost prices a positive correction. When nil the current weighted average is used.
	UnitCost *decimal.Decimal
	// RestoreBatchID returns a positive correction into an existing batch instead of
	// creating a new one.
	RestoreBatchID *int64
	Note           string
}

// AppliedAdjustment reports the ledger effect of one AdjustmentLine.
type AppliedAdjustment struct {
	Line           AdjustmentLine
	Transaction    Transaction
	QuantityBefore decimal.Decimal
	QuantityAfter  decimal.Decimal
}

// StockLevel is derived stock for a part, optionally scoped to a location subtree.
type StockLevel struct {
	PartID       int64           `json:"part_id"`
	LocationID   *int64          `json:"location_id,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Value        decimal.Decimal `json:"value"`
	ChainBalance decimal.Decimal `json:"chain_balance"`
	Consistent   bool            `json:"consistent"`
}

// HistoryFilter narrows transaction history queries.
type HistoryFilter struct {
	PartID  int64
	From    time.Time
	To      time.Time
	AfterID int64
	Limit   int
}

// ChainBreak describes a link in the transaction chain that does not line up.
type ChainBreak struct {
	TransactionID int64           `json:"transaction_id"`
	Expected      decimal.Decimal `json:"expected"`
	Actual        decimal.Decimal `json:"actual"`
	Reason        string          `json:"reason"`
}

// LedgerReport is the outcome of verifying one part's ledger.
type LedgerReport struct {
	PartID       int64           `json:"part_id"`
	Transactions int             `json:"transactions"`
	BatchTotal   decimal.Decimal `json:"batch_total"`
	ChainBalance decimal.Decimal `json:"chain_balance"`
	Breaks       []ChainBreak    `json:"breaks,omitempty"`
}

// OK reports whether the ledger verified cleanly.
func (r LedgerReport) OK() bool {
	return len(r.Breaks) == 0 && r.BatchTotal.Equal(r.ChainBalance)
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity or one finer than QuantityPlaces.
	ErrInvalidQuantity = shared.NewError(shared.ErrValidation, "inventory: invalid quantity")
	// ErrInvalidUnitCost indicates a negative unit cost or one finer than CostPlaces.
	ErrInvalidUnitCost = shared.NewError(shared.ErrValidation, "inventory: invalid unit cost")
	// ErrInvalidSource indicates an unsupported receipt source.
	ErrInvalidSource = shared.NewError(shared.ErrValidation, "inventory: invalid batch source")
	// ErrInvalidJobRef indicates a consumption without a job reference.
	ErrInvalidJobRef = shared.NewError(shared.ErrValidation, "inventory: job reference required")
	// ErrInsufficientStock indicates active batches cannot cover a draw.
	ErrInsufficientStock = shared.NewError(shared.ErrConflict, "inventory: insufficient stock")
	// ErrInsufficientBatchQuantity indicates a single batch cannot cover a draw.
	ErrInsufficientBatchQuantity = shared.NewError(shared.ErrConflict, "inventory: insufficient batch quantity")
	// ErrOpeningBalanceExists indicates a part already has ledger history.
	ErrOpeningBalanceExists = shared.NewError(shared.ErrConflict, "inventory: part already has stock history")
	// ErrBatchNotFound is returned for unknown batch ids.
	ErrBatchNotFound = shared.NewError(shared.ErrReferentialIntegrity, "inventory: batch not found")
	// ErrLedgerInconsistent indicates the transaction chain disagrees with batch totals.
	ErrLedgerInconsistent = shared.NewError(shared.ErrIntegrity, "inventory: ledger inconsistent")
)
