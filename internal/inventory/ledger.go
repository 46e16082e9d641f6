package inventory

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const (
	// QuantityPlaces is the number of decimal places stored for quantities.
	QuantityPlaces = 4
	// CostPlaces is the number of decimal places stored for unit costs and cost totals.
	CostPlaces = 6
)

// ValidQuantity reports whether q is positive and fits the stored quantity precision.
func ValidQuantity(q decimal.Decimal) bool {
	return q.IsPositive() && fitsPlaces(q, QuantityPlaces)
}

// ValidQuantityChange reports whether a signed correction is non-zero and fits the
// stored quantity precision.
func ValidQuantityChange(q decimal.Decimal) bool {
	return !q.IsZero() && fitsPlaces(q, QuantityPlaces)
}

// ValidUnitCost reports whether c is non-negative and fits the stored cost precision.
func ValidUnitCost(c decimal.Decimal) bool {
	return !c.IsNegative() && fitsPlaces(c, CostPlaces)
}

func fitsPlaces(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// SortActive filters batches with stock left and orders them oldest first
// (received_at, then id).
func SortActive(batches []Batch) []Batch {
	out := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if b.QuantityRemaining.IsPositive() {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SumRemaining totals quantity remaining across batches.
func SumRemaining(batches []Batch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		total = total.Add(b.QuantityRemaining)
	}
	return total
}

// StockValue totals remaining × unit cost across batches.
func StockValue(batches []Batch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		total = total.Add(b.QuantityRemaining.Mul(b.UnitCost))
	}
	return total
}

// drawDown removes qty from the batch.
func (b *Batch) drawDown(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	if qty.GreaterThan(b.QuantityRemaining) {
		return fmt.Errorf("%w: batch %d has %s, requested %s", ErrInsufficientBatchQuantity, b.ID, b.QuantityRemaining, qty)
	}
	b.QuantityRemaining = b.QuantityRemaining.Sub(qty)
	return nil
}

// restoreQuantity puts qty back into the batch without exceeding what was received.
func (b *Batch) restoreQuantity(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	next := b.QuantityRemaining.Add(qty)
	if next.GreaterThan(b.QuantityReceived) {
		return fmt.Errorf("%w: batch %d would exceed received quantity %s", ErrInvalidQuantity, b.ID, b.QuantityReceived)
	}
	b.QuantityRemaining = next
	return nil
}

// inScope filters batches to the given location ids. A nil scope keeps everything.
func inScope(batches []Batch, scope []int64) []Batch {
	if scope == nil {
		return batches
	}
	allowed := make(map[int64]struct{}, len(scope))
	for _, id := range scope {
		allowed[id] = struct{}{}
	}
	out := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if b.LocationID == nil {
			continue
		}
		if _, ok := allowed[*b.LocationID]; ok {
			out = append(out, b)
		}
	}
	return out
}
