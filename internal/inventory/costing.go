package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
)

// Plan is a costed draw against a part's batches. Allocations list the physical draw
// per batch, oldest first, and the unit cost charged.
type Plan struct {
	Method      catalog.CostingMethod
	Allocations []Allocation
	Total       decimal.Decimal
}

// PlanConsumption costs qty against active batches (ordered oldest first) without
// touching them. It fails with ErrInsufficientStock when the batches cannot cover qty.
func PlanConsumption(method catalog.CostingMethod, batches []Batch, qty decimal.Decimal) (Plan, error) {
	if !qty.IsPositive() {
		return Plan{}, ErrInvalidQuantity
	}
	switch method {
	case catalog.CostingFIFO:
		return planFIFO(batches, qty)
	case catalog.CostingWeightedAverage:
		return planWeightedAverage(batches, qty)
	default:
		return Plan{}, fmt.Errorf("inventory: unsupported costing method %q", method)
	}
}

func planFIFO(batches []Batch, qty decimal.Decimal) (Plan, error) {
	draws, err := drawOldestFirst(batches, qty)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Method: catalog.CostingFIFO, Allocations: draws, Total: decimal.Zero}
	for _, a := range draws {
		plan.Total = plan.Total.Add(a.Total())
	}
	return plan, nil
}

func planWeightedAverage(batches []Batch, qty decimal.Decimal) (Plan, error) {
	avg, ok := WeightedAverageCost(batches)
	if !ok {
		return Plan{}, fmt.Errorf("%w: no active batches", ErrInsufficientStock)
	}
	draws, err := drawOldestFirst(batches, qty)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Method: catalog.CostingWeightedAverage, Allocations: draws, Total: decimal.Zero}
	for i := range plan.Allocations {
		plan.Allocations[i].UnitCost = avg
		plan.Total = plan.Total.Add(plan.Allocations[i].Total())
	}
	return plan, nil
}

// WeightedAverageCost returns Σ(remaining × cost) / Σ(remaining) over active batches.
func WeightedAverageCost(batches []Batch) (decimal.Decimal, bool) {
	qty := SumRemaining(batches)
	if !qty.IsPositive() {
		return decimal.Zero, false
	}
	return StockValue(batches).DivRound(qty, CostPlaces), true
}

// drawOldestFirst walks batches in order taking min(needed, remaining) from each.
func drawOldestFirst(batches []Batch, qty decimal.Decimal) ([]Allocation, error) {
	available := SumRemaining(batches)
	if available.LessThan(qty) {
		return nil, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientStock, qty, available)
	}
	needed := qty
	var draws []Allocation
	for _, b := range batches {
		if !needed.IsPositive() {
			break
		}
		if !b.QuantityRemaining.IsPositive() {
			continue
		}
		take := decimal.Min(needed, b.QuantityRemaining)
		draws = append(draws, Allocation{BatchID: b.ID, Quantity: take, UnitCost: b.UnitCost})
		needed = needed.Sub(take)
	}
	return draws, nil
}

// planReduction removes qty from the most recently received batches first. Count
// shortfalls are attributed to the newest stock.
func planReduction(batches []Batch, qty decimal.Decimal) ([]Allocation, error) {
	reversed := make([]Batch, len(batches))
	for i, b := range batches {
		reversed[len(batches)-1-i] = b
	}
	return drawOldestFirst(reversed, qty)
}

// positiveAdjustmentCost resolves the unit cost of stock found during a count: the explicit
// cost when given, else the current weighted average, else the newest batch cost, else zero.
func positiveAdjustmentCost(explicit *decimal.Decimal, active []Batch, newest *Batch) decimal.Decimal {
	if explicit != nil {
		return *explicit
	}
	if avg, ok := WeightedAverageCost(active); ok {
		return avg
	}
	if newest != nil {
		return newest.UnitCost
	}
	return decimal.Zero
}

// blendedCost is the average unit cost of a set of allocations.
func blendedCost(allocs []Allocation) decimal.Decimal {
	qty, value := decimal.Zero, decimal.Zero
	for _, a := range allocs {
		qty = qty.Add(a.Quantity)
		value = value.Add(a.Total())
	}
	if qty.IsZero() {
		return decimal.Zero
	}
	return value.DivRound(qty, CostPlaces)
}
