package alerts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// Type classifies a stock alert.
type Type string

const (
	TypeLowStock   Type = "LOW_STOCK"
	TypeOutOfStock Type = "OUT_OF_STOCK"
	TypeNearExpiry Type = "NEAR_EXPIRY"
	TypeExpired    Type = "EXPIRED"
)

// Severity ranks alerts for operators.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is the stored state of one (part, type) condition.
type Alert struct {
	ID             int64      `json:"id"`
	PartID         int64      `json:"part_id"`
	Type           Type       `json:"type"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *int64     `json:"resolved_by,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	FirstRaisedAt  time.Time  `json:"first_raised_at"`
	LastRaisedAt   time.Time  `json:"last_raised_at"`
}

// BatchExpiry is the slice of batch state the evaluator needs.
type BatchExpiry struct {
	BatchNumber string
	Remaining   decimal.Decimal
	ExpiryDate  *time.Time
}

// Input is everything Evaluate looks at for one part.
type Input struct {
	PartID       int64
	PartCode     string
	Quantity     decimal.Decimal
	MinimumStock decimal.Decimal
	Batches      []BatchExpiry
	Now          time.Time
	ExpiryWindow time.Duration
}

// SweepResult summarises a periodic evaluation of every active part.
type SweepResult struct {
	Parts  int `json:"parts"`
	Raised int `json:"raised"`
	Failed int `json:"failed"`
}

var (
	// ErrAlertNotFound is returned for unknown alert ids.
	ErrAlertNotFound = shared.NewError(shared.ErrReferentialIntegrity, "alerts: alert not found")
)
