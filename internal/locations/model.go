package locations

import (
	"time"

	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// Kind is the level of a location in the warehouse tree.
type Kind string

const (
	// KindWarehouse is a root location.
	KindWarehouse Kind = "WAREHOUSE"
	// KindZone sits inside a warehouse.
	KindZone Kind = "ZONE"
	// KindBin sits inside a zone.
	KindBin Kind = "BIN"
)

// parentKind lists the kind each level must be nested under.
var parentKind = map[Kind]Kind{
	KindZone: KindWarehouse,
	KindBin:  KindZone,
}

// Location is a node of the warehouse → zone → bin hierarchy.
type Location struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	// ErrLocationNotFound is returned for unknown location ids.
	ErrLocationNotFound = shared.NewError(shared.ErrReferentialIntegrity, "locations: location not found")
	// ErrInvalidParent is returned when the nesting rule is violated.
	ErrInvalidParent = shared.NewError(shared.ErrValidation, "locations: invalid parent for location kind")
	// ErrDuplicateCode is returned when a location code is already taken.
	ErrDuplicateCode = shared.NewError(shared.ErrConflict, "locations: location code already exists")
)
