package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// CostingMethod selects how consumption is priced.
type CostingMethod string

const (
	// CostingFIFO prices each unit at the cost of the batch it was drawn from.
	CostingFIFO CostingMethod = "FIFO"
	// CostingWeightedAverage prices every unit at the average cost of active batches.
	CostingWeightedAverage CostingMethod = "WEIGHTED_AVERAGE"
)

// Valid reports whether m is a supported method.
func (m CostingMethod) Valid() bool {
	return m == CostingFIFO || m == CostingWeightedAverage
}

// PartStatus is the lifecycle state of a part. Parts are never hard-deleted.
type PartStatus string

const (
	// PartActive parts can be received and consumed.
	PartActive PartStatus = "ACTIVE"
	// PartInactive is a tombstone: history stays readable, new movements are refused.
	PartInactive PartStatus = "INACTIVE"
)

// Part is a catalog entry for a stockable spare part.
type Part struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	UOM           string          `json:"uom"`
	MinimumStock  decimal.Decimal `json:"minimum_stock"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	VATRate       decimal.Decimal `json:"vat_rate"`
	CostingMethod CostingMethod   `json:"costing_method,omitempty"`
	Status        PartStatus      `json:"status"`
	DeactivatedAt *time.Time      `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Active reports whether the part accepts stock movements.
func (p Part) Active() bool {
	return p.Status == PartActive
}

// EffectiveMethod returns the part override or the organisation default.
func (p Part) EffectiveMethod(def CostingMethod) CostingMethod {
	if p.CostingMethod.Valid() {
		return p.CostingMethod
	}
	return def
}

// ListFilters narrows part listings.
type ListFilters struct {
	Search string
	Status PartStatus
	Limit  int
	Page   int
}

var (
	// ErrPartNotFound is returned for unknown part ids.
	ErrPartNotFound = shared.NewError(shared.ErrReferentialIntegrity, "catalog: part not found")
	// ErrPartInactive is returned when a movement targets a deactivated part.
	ErrPartInactive = shared.NewError(shared.ErrConflict, "catalog: part is inactive")
	// ErrDuplicateCode is returned when a part code is already taken.
	ErrDuplicateCode = shared.NewError(shared.ErrConflict, "catalog: part code already exists")
)
