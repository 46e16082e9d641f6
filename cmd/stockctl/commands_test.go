package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/inventory"
	"github.com/odyssey-erp/garage-inventory/internal/locations"
	"github.com/odyssey-erp/garage-inventory/jobs"
)

type fakeMigrator struct {
	version uint
	downBy  int
	closed  bool
}

func (m *fakeMigrator) Up() error { m.version = 4; return nil }
func (m *fakeMigrator) Down(steps int) error {
	m.downBy = steps
	m.version -= uint(steps)
	return nil
}
func (m *fakeMigrator) Version() (uint, bool, error) { return m.version, false, nil }
func (m *fakeMigrator) Close() error                 { m.closed = true; return nil }

type fakeQueue struct {
	triggered []string
}

func (q *fakeQueue) Trigger(_ context.Context, name string) (*asynq.TaskInfo, error) {
	if name != jobs.TaskAlertSweep && name != jobs.TaskLedgerVerify {
		return nil, jobs.ErrUnknownTask
	}
	q.triggered = append(q.triggered, name)
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault}, nil
}
func (q *fakeQueue) Close() error { return nil }

type fakeLedger struct {
	got     []int64
	summary jobs.LedgerSummary
}

func (l *fakeLedger) Run(_ context.Context, ids []int64) (jobs.LedgerSummary, error) {
	l.got = ids
	return l.summary, nil
}

func execute(t *testing.T, rt runtime, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rt.out = &out
	root := newRootCmd(rt)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateUpAndDown(t *testing.T) {
	m := &fakeMigrator{}
	rt := runtime{migrator: func() (migrator, error) { return m, nil }}

	out, err := execute(t, rt, "migrate", "up")
	require.NoError(t, err)
	require.Contains(t, out, "schema version 4")
	require.True(t, m.closed)

	out, err = execute(t, rt, "migrate", "down", "--steps", "2")
	require.NoError(t, err)
	require.Equal(t, 2, m.downBy)
	require.Contains(t, out, "schema version 2")
}

func TestJobsTrigger(t *testing.T) {
	q := &fakeQueue{}
	rt := runtime{queue: func() (enqueuer, error) { return q, nil }}

	out, err := execute(t, rt, "jobs", "trigger", jobs.TaskAlertSweep)
	require.NoError(t, err)
	require.Contains(t, out, "enqueued inventory:alerts:sweep as task-1")
	require.Equal(t, []string{jobs.TaskAlertSweep}, q.triggered)

	_, err = execute(t, rt, "jobs", "trigger", "reports:nightly")
	require.ErrorIs(t, err, jobs.ErrUnknownTask)

	_, err = execute(t, rt, "jobs", "trigger")
	require.Error(t, err)
}

func TestLedgerVerifyReportsBrokenParts(t *testing.T) {
	l := &fakeLedger{summary: jobs.LedgerSummary{
		Parts: 2,
		Broken: []inventory.LedgerReport{{
			PartID:       7,
			BatchTotal:   decimal.NewFromInt(5),
			ChainBalance: decimal.NewFromInt(6),
			Breaks: []inventory.ChainBreak{{
				TransactionID: 31,
				Expected:      decimal.NewFromInt(4),
				Actual:        decimal.NewFromInt(5),
				Reason:        "balance mismatch",
			}},
		}},
	}}
	closed := false
	rt := runtime{ledger: func(context.Context) (ledgerRunner, func(), error) {
		return l, func() { closed = true }, nil
	}}

	out, err := execute(t, rt, "ledger", "verify", "7", "8")
	require.True(t, errors.Is(err, errLedgerBroken))
	require.Equal(t, []int64{7, 8}, l.got)
	require.True(t, closed)
	require.Contains(t, out, "part 7: batches 5, chain 6, 1 break(s)")
	require.Contains(t, out, "transaction 31: balance mismatch")
	require.Contains(t, out, "verified 2 part(s), 1 broken")
}

func TestLedgerVerifyAllParts(t *testing.T) {
	l := &fakeLedger{summary: jobs.LedgerSummary{Parts: 3}}
	rt := runtime{ledger: func(context.Context) (ledgerRunner, func(), error) { return l, nil, nil }}

	out, err := execute(t, rt, "ledger", "verify")
	require.NoError(t, err)
	require.Empty(t, l.got)
	require.Contains(t, out, "verified 3 part(s), 0 broken")

	_, err = execute(t, rt, "ledger", "verify", "abc")
	require.Error(t, err)
}

type seedRecorder struct {
	locations []locations.Location
	parts     []catalog.Part
	balances  []inventory.OpeningBalanceInput
}

func (r *seedRecorder) Create(_ context.Context, loc locations.Location) (locations.Location, error) {
	for _, existing := range r.locations {
		if existing.Code == loc.Code {
			return locations.Location{}, locations.ErrDuplicateCode
		}
	}
	loc.ID = int64(len(r.locations) + 1)
	r.locations = append(r.locations, loc)
	return loc, nil
}

type partRecorder struct{ r *seedRecorder }

func (p partRecorder) Create(_ context.Context, part catalog.Part) (catalog.Part, error) {
	part.ID = int64(len(p.r.parts) + 100)
	p.r.parts = append(p.r.parts, part)
	return part, nil
}

type balanceRecorder struct{ r *seedRecorder }

func (b balanceRecorder) RecordOpeningBalance(_ context.Context, in inventory.OpeningBalanceInput) (inventory.Batch, inventory.Transaction, error) {
	b.r.balances = append(b.r.balances, in)
	return inventory.Batch{}, inventory.Transaction{}, nil
}

func TestSeedBuildsHierarchyAndBalances(t *testing.T) {
	rec := &seedRecorder{}
	rt := runtime{seed: func(context.Context) (seedTargets, func(), error) {
		return seedTargets{Locations: rec, Parts: partRecorder{rec}, Stock: balanceRecorder{rec}}, nil, nil
	}}

	out, err := execute(t, rt, "seed")
	require.NoError(t, err)
	require.Len(t, rec.locations, 3)
	require.Equal(t, locations.KindBin, rec.locations[2].Kind)
	require.Equal(t, int64(2), *rec.locations[2].ParentID)
	require.Len(t, rec.parts, len(demoParts))
	require.Len(t, rec.balances, len(demoParts))
	for i, bal := range rec.balances {
		require.Equal(t, rec.parts[i].ID, bal.PartID)
		require.Equal(t, int64(3), *bal.LocationID)
	}
	require.Contains(t, out, "Seed complete")

	out, err = execute(t, rt, "seed")
	require.NoError(t, err)
	require.Contains(t, out, "already present")
	require.Len(t, rec.parts, len(demoParts))
}
