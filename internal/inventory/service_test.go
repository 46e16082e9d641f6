package inventory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/inventory"
	"github.com/odyssey-erp/garage-inventory/internal/inventory/inventorytest"
	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store *inventorytest.Store
	parts *inventorytest.Parts
	svc   *inventory.Service
}

func newFixture(t *testing.T, method catalog.CostingMethod, opts ...inventory.Option) fixture {
	t.Helper()
	store := inventorytest.NewStore()
	parts := inventorytest.NewParts(store)
	parts.Add(catalog.Part{ID: 1, Code: "BRK", Name: "Brake pad", MinimumStock: d("2")})
	opts = append(opts, inventory.WithLocations(inventorytest.Scopes{10: {10, 11, 12}, 11: {11}, 12: {12}}))
	svc := inventory.NewService(store, parts, shared.NewLocalLocker(time.Second), nil,
		inventory.ServiceConfig{DefaultMethod: method, LockRetryAttempts: 2, LockRetryBackoff: time.Millisecond}, opts...)
	return fixture{store: store, parts: parts, svc: svc}
}

func (f fixture) receive(t *testing.T, qty, cost string, at time.Time) inventory.Batch {
	t.Helper()
	b, _, err := f.svc.ReceiveStock(context.Background(), inventory.ReceiveInput{
		PartID:   1,
		Quantity: d(qty),
		UnitCost: d(cost),
		Source:   inventory.SourceInfo{ReceivedAt: at},
	})
	require.NoError(t, err)
	return b
}

func (f fixture) requireStock(t *testing.T, qty string) {
	t.Helper()
	level, err := f.svc.GetCurrentStock(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(d(qty)), "stock %s, want %s", level.Quantity, qty)
	require.True(t, level.Consistent)
	require.True(t, inventory.SumRemaining(f.store.Batches(1)).Equal(level.Quantity))
}

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestConsumeFIFO(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	b1 := f.receive(t, "5", "10", t0)
	b2 := f.receive(t, "5", "12", t0.Add(time.Hour))
	f.requireStock(t, "10")

	job := uuid.New()
	res, err := f.svc.ConsumePart(context.Background(), inventory.ConsumeInput{PartID: 1, Quantity: d("7"), JobRef: job})
	require.NoError(t, err)
	require.Equal(t, catalog.CostingFIFO, res.Method)
	require.True(t, res.TotalCost.Equal(d("74")))
	require.Len(t, res.Allocations, 2)
	requireAllocation(t, res.Allocations[0], b1.ID, "5", "10")
	requireAllocation(t, res.Allocations[1], b2.ID, "2", "12")
	f.requireStock(t, "3")

	cogs, err := f.svc.GetCOGSForJob(context.Background(), job)
	require.NoError(t, err)
	require.True(t, cogs.TotalCost.Equal(d("74")))
	require.Len(t, cogs.Lines, 2)
}

func TestConsumeWeightedAverage(t *testing.T) {
	f := newFixture(t, catalog.CostingWeightedAverage)
	f.receive(t, "5", "10", t0)
	f.receive(t, "5", "12", t0.Add(time.Hour))

	res, err := f.svc.ConsumePart(context.Background(), inventory.ConsumeInput{PartID: 1, Quantity: d("7"), JobRef: uuid.New()})
	require.NoError(t, err)
	require.True(t, res.TotalCost.Equal(d("77")))
	for _, a := range res.Allocations {
		require.True(t, a.UnitCost.Equal(d("11")))
	}
	batches := f.store.Batches(1)
	require.True(t, batches[0].QuantityRemaining.IsZero())
	require.True(t, batches[1].QuantityRemaining.Equal(d("3")))
}

func TestPartOverrideBeatsDefaultMethod(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	f.parts.Add(catalog.Part{ID: 1, Code: "BRK", Name: "Brake pad", CostingMethod: catalog.CostingWeightedAverage})
	f.receive(t, "5", "10", t0)
	f.receive(t, "5", "12", t0.Add(time.Hour))
	res, err := f.svc.ConsumePart(context.Background(), inventory.ConsumeInput{PartID: 1, Quantity: d("7"), JobRef: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, catalog.CostingWeightedAverage, res.Method)
}

func TestConsumeInsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	f.receive(t, "5", "10", t0)
	f.receive(t, "5", "12", t0.Add(time.Hour))
	before := f.store.Batches(1)
	txCount := len(f.store.Transactions())

	job := uuid.New()
	_, err := f.svc.ConsumePart(context.Background(), inventory.ConsumeInput{PartID: 1, Quantity: d("11"), JobRef: job})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Equal(t, before, f.store.Batches(1))
	require.Len(t, f.store.Transactions(), txCount)

	cogs, err := f.svc.GetCOGSForJob(context.Background(), job)
	require.NoError(t, err)
	require.Empty(t, cogs.Lines)
}

func TestConsumeRollsBackOnWriteFailure(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	f.receive(t, "5", "10", t0)
	before := f.store.Batches(1)

	f.store.FailOn = "InsertUsages"
	_, err := f.svc.ConsumePart(context.Background(), inventory.ConsumeInput{PartID: 1, Quantity: d("2"), JobRef: uuid.New()})
	require.ErrorIs(t, err, inventorytest.ErrInjected)
	f.store.FailOn = ""

	require.Equal(t, before, f.store.Batches(1))
	f.requireStock(t, "5")
}

func TestConsumeValidation(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	ctx := context.Background()

	_, err := f.svc.ConsumePart(ctx, inventory.ConsumeInput{PartID: 1, Quantity: d("0"), JobRef: uuid.New()})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.ConsumePart(ctx, inventory.ConsumeInput{PartID: 1, Quantity: d("1")})
	require.ErrorIs(t, err, inventory.ErrInvalidJobRef)

	_, err = f.svc.ConsumePart(ctx, inventory.ConsumeInput{PartID: 404, Quantity: d("1"), JobRef: uuid.New()})
	require.ErrorIs(t, err, shared.ErrReferentialIntegrity)

	f.parts.Deactivate(1)
	_, err = f.svc.ConsumePart(ctx, inventory.ConsumeInput{PartID: 1, Quantity: d("1"), JobRef: uuid.New()})
	require.ErrorIs(t, err, catalog.ErrPartInactive)
	_, _, err = f.svc.ReceiveStock(ctx, inventory.ReceiveInput{PartID: 1, Quantity: d("1"), UnitCost: d("1")})
	require.ErrorIs(t, err, catalog.ErrPartInactive)
}

func TestRejectsPrecisionBeyondStoredScale(t *testing.T) {
	f := newFixture(t, catalog.CostingWeightedAverage)
	f.receive(t, "5", "10", t0)
	f.receive(t, "4", "11", t0.Add(time.Hour))
	ctx := context.Background()
	txCount := len(f.store.Transactions())

	_, err := f.svc.ConsumePart(ctx, inventory.ConsumeInput{PartID: 1, Quantity: d("0.00001"), JobRef: uuid.New()})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	_, _, err = f.svc.ReceiveStock(ctx, inventory.ReceiveInput{PartID: 1, Quantity: d("1.23456"), UnitCost: d("1")})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	_, _, err = f.svc.ReceiveStock(ctx, inventory.ReceiveInput{PartID: 1, Quantity: d("1"), UnitCost: d("0.0000001")})
	require.ErrorIs(t, err, inventory.ErrInvalidUnitCost)
	_, err = f.svc.ApplyAdjustments(ctx, 1, []inventory.AdjustmentLine{{PartID: 1, Quantity: d("-0.00005")}}, nil)
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	_, err = f.svc.ApplyAdjustments(ctx, 1, []inventory.AdjustmentLine{{PartID: 1, Quantity: d("1"), UnitCost: ptr(d("2.1234567"))}}, nil)
	require.ErrorIs(t, err, inventory.ErrInvalidUnitCost)
	require.Len(t, f.store.Transactions(), txCount)
	f.requireStock(t, "9")

	job := uuid.New()
	res, err := f.svc.ConsumePart(ctx, inventory.ConsumeInput{PartID: 1, Quantity: d("0.0001000"), JobRef: job})
	require.NoError(t, err, "trailing zeros within scale are accepted")
	require.Equal(t, "10.444444", res.Allocations[0].UnitCost.String())
	require.Equal(t, "0.001044", res.TotalCost.String())

	cogs, err := f.svc.GetCOGSForJob(ctx, job)
	require.NoError(t, err)
	require.True(t, cogs.TotalCost.Equal(res.TotalCost))
}

func TestReceiveValidation(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	ctx := context.Background()
	_, _, err := f.svc.ReceiveStock(ctx, inventory.ReceiveInput{PartID: 1, Quantity: d("-1"), UnitCost: d("1")})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	_, _, err = f.svc.ReceiveStock(ctx, inventory.ReceiveInput{PartID: 1, Quantity: d("1"), UnitCost: d("-1")})
	require.ErrorIs(t, err, inventory.ErrInvalidUnitCost)
	_, _, err = f.svc.ReceiveStock(ctx, inventory.ReceiveInput{PartID: 1, Quantity: d("1"), UnitCost: d("1"), Source: inventory.SourceInfo{Source: inventory.SourceOpening}})
	require.ErrorIs(t, err, inventory.ErrInvalidSource)
}

func TestReceiveRecordsTraceability(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	supplier := int64(77)
	batch, txn, err := f.svc.ReceiveStock(context.Background(), inventory.ReceiveInput{
		PartID:   1,
		Quantity: d("4"),
		UnitCost: d("25.50"),
		Source:   inventory.SourceInfo{Source: inventory.SourceSalvage, SupplierID: &supplier, InvoiceRef: "INV-9"},
	})
	require.NoError(t, err)
	require.True(t, batch.HasInvoice)
	require.Equal(t, inventory.SourceSalvage, batch.Source)
	require.Equal(t, inventory.KindReceipt, txn.Kind)
	require.True(t, txn.QuantityBefore.IsZero())
	require.True(t, txn.QuantityAfter.Equal(d("4")))
	require.Equal(t, &batch.ID, txn.BatchID)
}

func TestTransactionChainAcrossOperations(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	f.receive(t, "5", "10", t0)
	_, err := f.svc.ConsumePart(context.Background(), inventory.ConsumeInput{PartID: 1, Quantity: d("2"), JobRef: uuid.New()})
	require.NoError(t, err)
	f.receive(t, "3", "11", t0.Add(time.Hour))

	history, err := f.svc.QueryHistory(context.Background(), inventory.HistoryFilter{PartID: 1})
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		require.True(t, history[i-1].QuantityAfter.Equal(history[i].QuantityBefore))
	}
	require.True(t, history[2].QuantityAfter.Equal(d("6")))

	report, err := f.svc.VerifyLedger(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, 3, report.Transactions)
}

func TestConcurrentConsumption(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	f.receive(t, "40", "10", t0)
	f.receive(t, "60", "12", t0.Add(time.Hour))

	var (
		mu    sync.Mutex
		drawn = decimal.Zero
	)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			res, err := f.svc.ConsumePart(ctx, inventory.ConsumeInput{PartID: 1, Quantity: d("10"), JobRef: uuid.New()})
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, a := range res.Allocations {
				drawn = drawn.Add(a.Quantity)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.True(t, drawn.Equal(d("100")))
	f.requireStock(t, "0")

	report, err := f.svc.VerifyLedger(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, 12, report.Transactions)
}

// passLocker grants every lock immediately, leaving writers of one part unserialised.
type passLocker struct{}

func (passLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

func TestOverlappingWritersNeedThePartLock(t *testing.T) {
	newService := func(store *inventorytest.Store, locker shared.Locker) *inventory.Service {
		parts := inventorytest.NewParts(store)
		parts.Add(catalog.Part{ID: 1, Code: "BRK", Name: "Brake pad"})
		return inventory.NewService(store, parts, locker, nil, inventory.ServiceConfig{LockRetryAttempts: 1})
	}
	consume := func(svc *inventory.Service) error {
		_, err := svc.ConsumePart(context.Background(), inventory.ConsumeInput{PartID: 1, Quantity: d("1"), JobRef: uuid.New()})
		return err
	}

	t.Run("without lock", func(t *testing.T) {
		store := inventorytest.NewStore()
		svc := newService(store, passLocker{})
		_, _, err := svc.ReceiveStock(context.Background(), inventory.ReceiveInput{PartID: 1, Quantity: d("10"), UnitCost: d("5")})
		require.NoError(t, err)

		entered, release := make(chan struct{}), make(chan struct{})
		var once sync.Once
		store.OnLockPart = func(int64) {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		first := make(chan error, 1)
		go func() { first <- consume(svc) }()
		<-entered

		err = consume(svc)
		close(release)
		require.ErrorIs(t, err, inventorytest.ErrConcurrentWriter)
		require.NoError(t, <-first)
	})

	t.Run("with lock", func(t *testing.T) {
		store := inventorytest.NewStore()
		svc := newService(store, shared.NewLocalLocker(time.Second))
		_, _, err := svc.ReceiveStock(context.Background(), inventory.ReceiveInput{PartID: 1, Quantity: d("10"), UnitCost: d("5")})
		require.NoError(t, err)

		var entered sync.Once
		store.OnLockPart = func(int64) { entered.Do(func() { time.Sleep(20 * time.Millisecond) }) }
		g := new(errgroup.Group)
		for i := 0; i < 10; i++ {
			g.Go(func() error { return consume(svc) })
		}
		require.NoError(t, g.Wait())
		level, err := svc.GetCurrentStock(context.Background(), 1)
		require.NoError(t, err)
		require.True(t, level.Quantity.IsZero())
		require.True(t, level.Consistent)
	})
}

func TestOpeningBalance(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	ctx := context.Background()
	batch, txn, err := f.svc.RecordOpeningBalance(ctx, inventory.OpeningBalanceInput{PartID: 1, Quantity: d("12.5"), UnitCost: d("8")})
	require.NoError(t, err)
	require.Equal(t, inventory.SourceOpening, batch.Source)
	require.Equal(t, inventory.KindOpeningBalance, txn.Kind)
	f.requireStock(t, "12.5")

	_, _, err = f.svc.RecordOpeningBalance(ctx, inventory.OpeningBalanceInput{PartID: 1, Quantity: d("1"), UnitCost: d("8")})
	require.ErrorIs(t, err, inventory.ErrOpeningBalanceExists)
	f.requireStock(t, "12.5")
}

func TestLedgerDriftBlocksWrites(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	f.receive(t, "5", "10", t0)
	f.store.CorruptTransaction(1, func(txn *inventory.Transaction) { txn.QuantityAfter = d("4") })

	level, err := f.svc.GetCurrentStock(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, level.Consistent)
	require.True(t, level.Quantity.Equal(d("5")))

	_, err = f.svc.ConsumePart(context.Background(), inventory.ConsumeInput{PartID: 1, Quantity: d("1"), JobRef: uuid.New()})
	require.ErrorIs(t, err, inventory.ErrLedgerInconsistent)
	require.ErrorIs(t, err, shared.ErrIntegrity)
	require.True(t, f.store.Batches(1)[0].QuantityRemaining.Equal(d("5")))
}

func TestLocationScopedConsumption(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	ctx := context.Background()
	bin11, bin12 := int64(11), int64(12)
	_, _, err := f.svc.ReceiveStock(ctx, inventory.ReceiveInput{PartID: 1, LocationID: &bin11, Quantity: d("3"), UnitCost: d("10"), Source: inventory.SourceInfo{ReceivedAt: t0}})
	require.NoError(t, err)
	_, _, err = f.svc.ReceiveStock(ctx, inventory.ReceiveInput{PartID: 1, LocationID: &bin12, Quantity: d("4"), UnitCost: d("20"), Source: inventory.SourceInfo{ReceivedAt: t0.Add(time.Hour)}})
	require.NoError(t, err)

	res, err := f.svc.ConsumePart(ctx, inventory.ConsumeInput{PartID: 1, LocationID: &bin12, Quantity: d("2"), JobRef: uuid.New()})
	require.NoError(t, err)
	require.True(t, res.TotalCost.Equal(d("40")))

	_, err = f.svc.ConsumePart(ctx, inventory.ConsumeInput{PartID: 1, LocationID: &bin12, Quantity: d("3"), JobRef: uuid.New()})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	whStock, err := f.svc.GetLocationStock(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, whStock.Quantity.Equal(d("5")))
	binStock, err := f.svc.GetLocationStock(ctx, 1, 11)
	require.NoError(t, err)
	require.True(t, binStock.Quantity.Equal(d("3")))

	missing := int64(99)
	_, err = f.svc.ListActiveBatches(ctx, 1, &missing)
	require.ErrorIs(t, err, shared.ErrReferentialIntegrity)
}

func TestApplyAdjustments(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	f.parts.Add(catalog.Part{ID: 2, Code: "OIL", Name: "Oil"})
	f.receive(t, "5", "10", t0)
	f.receive(t, "5", "12", t0.Add(time.Hour))

	var finalized []inventory.AppliedAdjustment
	applied, err := f.svc.ApplyAdjustments(context.Background(), 7, []inventory.AdjustmentLine{
		{PartID: 2, Quantity: d("3"), UnitCost: ptr(d("4"))},
		{PartID: 1, Quantity: d("-6")},
	}, func(_ context.Context, a []inventory.AppliedAdjustment) error {
		finalized = a
		return nil
	})
	require.NoError(t, err)
	require.Len(t, applied, 2)
	require.Equal(t, applied, finalized)

	oil := applied[0]
	require.True(t, oil.QuantityBefore.IsZero())
	require.True(t, oil.QuantityAfter.Equal(d("3")))
	require.Equal(t, inventory.KindAdjustment, oil.Transaction.Kind)
	require.Equal(t, int64(7), *oil.Transaction.AdjustmentID)

	brk := applied[1]
	require.True(t, brk.QuantityBefore.Sub(brk.QuantityAfter).Equal(d("6")))
	batches := f.store.Batches(1)
	require.True(t, batches[0].QuantityRemaining.Equal(d("4")), "older batch keeps stock")
	require.True(t, batches[1].QuantityRemaining.IsZero(), "newest batch reduced first")

	oilBatches := f.store.Batches(2)
	require.Len(t, oilBatches, 1)
	require.Equal(t, inventory.SourceAdjustment, oilBatches[0].Source)
	require.True(t, oilBatches[0].UnitCost.Equal(d("4")))
}

func TestPositiveAdjustmentUsesAverageCost(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	f.receive(t, "5", "10", t0)
	f.receive(t, "5", "12", t0.Add(time.Hour))
	_, err := f.svc.ApplyAdjustments(context.Background(), 1, []inventory.AdjustmentLine{{PartID: 1, Quantity: d("2")}}, nil)
	require.NoError(t, err)
	batches := f.store.Batches(1)
	require.True(t, batches[len(batches)-1].UnitCost.Equal(d("11")))
	f.requireStock(t, "12")
}

func TestAdjustmentRestoresIntoBatch(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	b := f.receive(t, "5", "10", t0)
	_, err := f.svc.ConsumePart(context.Background(), inventory.ConsumeInput{PartID: 1, Quantity: d("3"), JobRef: uuid.New()})
	require.NoError(t, err)

	_, err = f.svc.ApplyAdjustments(context.Background(), 3, []inventory.AdjustmentLine{{PartID: 1, Quantity: d("2"), RestoreBatchID: &b.ID}}, nil)
	require.NoError(t, err)
	require.Len(t, f.store.Batches(1), 1)
	f.requireStock(t, "4")

	_, err = f.svc.ApplyAdjustments(context.Background(), 4, []inventory.AdjustmentLine{{PartID: 1, Quantity: d("2"), RestoreBatchID: &b.ID}}, nil)
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	f.requireStock(t, "4")
}

func TestApplyAdjustmentsIsAllOrNothing(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	f.parts.Add(catalog.Part{ID: 2, Code: "OIL", Name: "Oil"})
	f.receive(t, "5", "10", t0)

	_, err := f.svc.ApplyAdjustments(context.Background(), 1, []inventory.AdjustmentLine{
		{PartID: 1, Quantity: d("-2")},
		{PartID: 2, Quantity: d("-1")},
	}, nil)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	f.requireStock(t, "5")

	boom := errors.New("status update failed")
	_, err = f.svc.ApplyAdjustments(context.Background(), 1, []inventory.AdjustmentLine{{PartID: 1, Quantity: d("-2")}},
		func(context.Context, []inventory.AppliedAdjustment) error { return boom })
	require.ErrorIs(t, err, boom)
	f.requireStock(t, "5")
	require.Len(t, f.store.Transactions(), 1)
}

func TestLockTimeoutIsRetryable(t *testing.T) {
	store := inventorytest.NewStore()
	parts := inventorytest.NewParts(store)
	parts.Add(catalog.Part{ID: 1, Code: "BRK", Name: "Brake pad"})
	locker := shared.NewLocalLocker(10 * time.Millisecond)
	svc := inventory.NewService(store, parts, locker, nil, inventory.ServiceConfig{LockRetryAttempts: 2, LockRetryBackoff: time.Millisecond})

	unlock, err := locker.Lock(context.Background(), shared.PartLockKey(1))
	require.NoError(t, err)
	defer unlock()

	_, _, err = svc.ReceiveStock(context.Background(), inventory.ReceiveInput{PartID: 1, Quantity: d("1"), UnitCost: d("1")})
	require.ErrorIs(t, err, shared.ErrLockTimeout)
	require.True(t, shared.IsRetryable(err))
	require.Empty(t, store.Transactions())
}

type recordingObserver struct {
	mu    sync.Mutex
	parts []int64
}

func (o *recordingObserver) StockChanged(_ context.Context, partID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.parts = append(o.parts, partID)
	return fmt.Errorf("observer failures are logged only")
}

func TestObserverNotifiedAfterCommit(t *testing.T) {
	f := newFixture(t, catalog.CostingFIFO)
	obs := &recordingObserver{}
	f.svc.SetObserver(obs)
	f.receive(t, "1", "1", t0)
	_, err := f.svc.ConsumePart(context.Background(), inventory.ConsumeInput{PartID: 1, Quantity: d("5"), JobRef: uuid.New()})
	require.Error(t, err)
	require.Equal(t, []int64{1}, obs.parts)
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[module+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+key)
	return nil
}

func TestIdempotentConsumption(t *testing.T) {
	idem := &memoryIdempotency{keys: map[string]bool{}}
	f := newFixture(t, catalog.CostingFIFO, inventory.WithIdempotency(idem))
	f.receive(t, "5", "10", t0)
	ctx := context.Background()
	in := inventory.ConsumeInput{PartID: 1, Quantity: d("2"), JobRef: uuid.New(), IdempotencyKey: "req-1"}

	_, err := f.svc.ConsumePart(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.ConsumePart(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	f.requireStock(t, "3")

	failing := inventory.ConsumeInput{PartID: 1, Quantity: d("50"), JobRef: uuid.New(), IdempotencyKey: "req-2"}
	_, err = f.svc.ConsumePart(ctx, failing)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	_, err = f.svc.ConsumePart(ctx, failing)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock, "failed attempts release their key")
}

func ptr[T any](v T) *T { return &v }

func requireAllocation(t *testing.T, a inventory.Allocation, batchID int64, qty, cost string) {
	t.Helper()
	require.Equal(t, batchID, a.BatchID)
	require.True(t, a.Quantity.Equal(d(qty)), "quantity %s, want %s", a.Quantity, qty)
	require.True(t, a.UnitCost.Equal(d(cost)), "unit cost %s, want %s", a.UnitCost, cost)
}
