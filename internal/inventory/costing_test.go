package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func twoBatches() []Batch {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []Batch{
		{ID: 1, ReceivedAt: t0, QuantityReceived: d("5"), QuantityRemaining: d("5"), UnitCost: d("10")},
		{ID: 2, ReceivedAt: t0.Add(time.Hour), QuantityReceived: d("5"), QuantityRemaining: d("5"), UnitCost: d("12")},
	}
}

func TestPlanFIFO(t *testing.T) {
	plan, err := PlanConsumption(catalog.CostingFIFO, twoBatches(), d("7"))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)
	require.Equal(t, int64(1), plan.Allocations[0].BatchID)
	require.True(t, plan.Allocations[0].Quantity.Equal(d("5")))
	require.True(t, plan.Allocations[0].UnitCost.Equal(d("10")))
	require.Equal(t, int64(2), plan.Allocations[1].BatchID)
	require.True(t, plan.Allocations[1].Quantity.Equal(d("2")))
	require.True(t, plan.Allocations[1].UnitCost.Equal(d("12")))
	require.True(t, plan.Total.Equal(d("74")), plan.Total.String())
}

func TestPlanWeightedAverage(t *testing.T) {
	plan, err := PlanConsumption(catalog.CostingWeightedAverage, twoBatches(), d("7"))
	require.NoError(t, err)
	for _, a := range plan.Allocations {
		require.True(t, a.UnitCost.Equal(d("11")))
	}
	require.True(t, plan.Allocations[0].Quantity.Equal(d("5")))
	require.True(t, plan.Allocations[1].Quantity.Equal(d("2")))
	require.True(t, plan.Total.Equal(d("77")), plan.Total.String())
}

func TestWeightedAverageRounding(t *testing.T) {
	batches := []Batch{
		{ID: 1, QuantityRemaining: d("3"), UnitCost: d("10")},
		{ID: 2, QuantityRemaining: d("3"), UnitCost: d("10")},
		{ID: 3, QuantityRemaining: d("3"), UnitCost: d("11")},
	}
	avg, ok := WeightedAverageCost(batches)
	require.True(t, ok)
	require.Equal(t, "10.333333", avg.String())

	_, ok = WeightedAverageCost(nil)
	require.False(t, ok)
}

func TestPlanInsufficientStock(t *testing.T) {
	batches := twoBatches()
	_, err := PlanConsumption(catalog.CostingFIFO, batches, d("11"))
	require.ErrorIs(t, err, ErrInsufficientStock)
	_, err = PlanConsumption(catalog.CostingWeightedAverage, batches, d("11"))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.True(t, batches[0].QuantityRemaining.Equal(d("5")))
	require.True(t, batches[1].QuantityRemaining.Equal(d("5")))

	_, err = PlanConsumption(catalog.CostingFIFO, batches, d("0"))
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestPlanFractionalQuantities(t *testing.T) {
	batches := []Batch{
		{ID: 1, QuantityRemaining: d("0.75"), UnitCost: d("8")},
		{ID: 2, QuantityRemaining: d("2.5"), UnitCost: d("9.5")},
	}
	plan, err := PlanConsumption(catalog.CostingFIFO, batches, d("1.25"))
	require.NoError(t, err)
	require.True(t, plan.Allocations[1].Quantity.Equal(d("0.5")))
	require.True(t, plan.Total.Equal(d("10.75")), plan.Total.String())
}

func TestPlanReductionNewestFirst(t *testing.T) {
	allocs, err := planReduction(twoBatches(), d("6"))
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	require.Equal(t, int64(2), allocs[0].BatchID)
	require.True(t, allocs[0].Quantity.Equal(d("5")))
	require.Equal(t, int64(1), allocs[1].BatchID)
	require.True(t, allocs[1].Quantity.Equal(d("1")))
}

func TestPositiveAdjustmentCostPolicy(t *testing.T) {
	explicit := d("15")
	require.True(t, positiveAdjustmentCost(&explicit, twoBatches(), nil).Equal(d("15")))
	require.True(t, positiveAdjustmentCost(nil, twoBatches(), nil).Equal(d("11")))
	newest := Batch{UnitCost: d("13")}
	require.True(t, positiveAdjustmentCost(nil, nil, &newest).Equal(d("13")))
	require.True(t, positiveAdjustmentCost(nil, nil, nil).IsZero())
}

func TestBatchDrawAndRestore(t *testing.T) {
	b := Batch{ID: 9, QuantityReceived: d("5"), QuantityRemaining: d("5")}
	require.NoError(t, b.drawDown(d("4")))
	require.ErrorIs(t, b.drawDown(d("2")), ErrInsufficientBatchQuantity)
	require.True(t, b.QuantityRemaining.Equal(d("1")))
	require.NoError(t, b.restoreQuantity(d("4")))
	require.ErrorIs(t, b.restoreQuantity(d("1")), ErrInvalidQuantity)
	require.True(t, b.QuantityRemaining.Equal(d("5")))
}

func TestSortActive(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	batches := []Batch{
		{ID: 3, ReceivedAt: t0, QuantityRemaining: d("1")},
		{ID: 1, ReceivedAt: t0.Add(time.Hour), QuantityRemaining: d("1")},
		{ID: 2, ReceivedAt: t0, QuantityRemaining: d("1")},
		{ID: 4, ReceivedAt: t0.Add(-time.Hour), QuantityRemaining: d("0")},
	}
	sorted := SortActive(batches)
	require.Len(t, sorted, 3)
	require.Equal(t, []int64{2, 3, 1}, []int64{sorted[0].ID, sorted[1].ID, sorted[2].ID})
}

func TestVerifyChain(t *testing.T) {
	txs := []Transaction{
		{ID: 1, Quantity: d("10"), QuantityBefore: d("0"), QuantityAfter: d("10")},
		{ID: 2, Quantity: d("-3"), QuantityBefore: d("10"), QuantityAfter: d("7")},
	}
	report := VerifyChain(1, txs, d("7"))
	require.True(t, report.OK())

	txs[1].QuantityBefore = d("9")
	report = VerifyChain(1, txs, d("7"))
	require.False(t, report.OK())
	require.Len(t, report.Breaks, 2)

	report = VerifyChain(1, txs[:1], d("7"))
	require.False(t, report.OK())
}
