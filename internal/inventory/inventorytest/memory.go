// Package inventorytest provides in-memory ledger fakes for tests.
package inventorytest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/inventory"
	"github.com/odyssey-erp/garage-inventory/internal/locations"
)

// Store is an in-memory inventory.RepositoryPort. Transactions run concurrently and roll
// back on error. Like a part row lock that never waits, LockPart fails with
// ErrConcurrentWriter when another open transaction already writes the same part.
type Store struct {
	mu      sync.Mutex
	parts   map[int64]struct{}
	writers map[int64]*storeTx
	state   ledgerState
	clock   func() time.Time
	FailOn  string
	// OnLockPart, when set, runs after a transaction claims a part and before it reads it.
	OnLockPart func(partID int64)
}

type ledgerState struct {
	batches      map[int64]inventory.Batch
	transactions []inventory.Transaction
	usages       []inventory.UsageRecord
	nextBatch    int64
	nextTx       int64
	nextUsage    int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		parts:   make(map[int64]struct{}),
		writers: make(map[int64]*storeTx),
		state:   ledgerState{batches: make(map[int64]inventory.Batch)},
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// RegisterPart makes LockPart accept the id.
func (s *Store) RegisterPart(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts[id] = struct{}{}
}

// Batches returns a snapshot of every batch of a part ordered by id.
func (s *Store) Batches(partID int64) []inventory.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchesLocked(partID, false)
}

// Transactions returns a snapshot of every transaction.
func (s *Store) Transactions() []inventory.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.transactions)
}

// CorruptTransaction overwrites a stored transaction, for drift tests.
func (s *Store) CorruptTransaction(id int64, mutate func(*inventory.Transaction)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.transactions {
		if s.state.transactions[i].ID == id {
			mutate(&s.state.transactions[i])
		}
	}
}

// WithTx implements inventory.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	tx := &storeTx{store: s, locked: make(map[int64]bool)}
	err := fn(ctx, tx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
	}
	for partID := range tx.locked {
		delete(s.writers, partID)
	}
	return err
}

func (s *Store) ListBatches(_ context.Context, partID int64, activeOnly bool) ([]inventory.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchesLocked(partID, activeOnly), nil
}

func (s *Store) batchesLocked(partID int64, activeOnly bool) []inventory.Batch {
	var out []inventory.Batch
	for _, b := range s.state.batches {
		if b.PartID != partID {
			continue
		}
		if activeOnly && !b.QuantityRemaining.IsPositive() {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) GetBatch(_ context.Context, id int64) (inventory.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.state.batches[id]
	if !ok {
		return inventory.Batch{}, inventory.ErrBatchNotFound
	}
	return b, nil
}

func (s *Store) LastTransaction(_ context.Context, partID int64) (*inventory.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.state.transactions) - 1; i >= 0; i-- {
		if s.state.transactions[i].PartID == partID {
			t := s.state.transactions[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (s *Store) ListTransactions(_ context.Context, filter inventory.HistoryFilter) ([]inventory.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Transaction
	for _, t := range s.state.transactions {
		if t.PartID != filter.PartID || t.ID <= filter.AfterID {
			continue
		}
		if !filter.From.IsZero() && t.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !t.CreatedAt.Before(filter.To) {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListUsagesByJob(_ context.Context, jobRef uuid.UUID) ([]inventory.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.UsageRecord
	for _, u := range s.state.usages {
		if u.JobRef == jobRef {
			out = append(out, u)
		}
	}
	return out, nil
}

var (
	// ErrInjected is returned by the write named in Store.FailOn.
	ErrInjected = errors.New("inventorytest: injected failure")
	// ErrConcurrentWriter is returned when two open transactions write the same part.
	ErrConcurrentWriter = errors.New("inventorytest: concurrent writer on part")
)

type storeTx struct {
	store  *Store
	locked map[int64]bool
	// undo reverts this transaction's writes in reverse order; run with store.mu held.
	undo []func()
}

func (t *storeTx) ListBatches(ctx context.Context, partID int64, activeOnly bool) ([]inventory.Batch, error) {
	return t.store.ListBatches(ctx, partID, activeOnly)
}

func (t *storeTx) GetBatch(ctx context.Context, id int64) (inventory.Batch, error) {
	return t.store.GetBatch(ctx, id)
}

func (t *storeTx) LastTransaction(ctx context.Context, partID int64) (*inventory.Transaction, error) {
	return t.store.LastTransaction(ctx, partID)
}

func (t *storeTx) ListTransactions(ctx context.Context, filter inventory.HistoryFilter) ([]inventory.Transaction, error) {
	return t.store.ListTransactions(ctx, filter)
}

func (t *storeTx) ListUsagesByJob(ctx context.Context, jobRef uuid.UUID) ([]inventory.UsageRecord, error) {
	return t.store.ListUsagesByJob(ctx, jobRef)
}

func (t *storeTx) LockPart(_ context.Context, partID int64) error {
	if err := t.claim(partID); err != nil {
		return err
	}
	if hook := t.store.OnLockPart; hook != nil {
		hook(partID)
	}
	return nil
}

func (t *storeTx) claim(partID int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.parts[partID]; !ok {
		return catalog.ErrPartNotFound
	}
	if t.locked[partID] {
		return nil
	}
	if _, busy := t.store.writers[partID]; busy {
		return fmt.Errorf("%w %d", ErrConcurrentWriter, partID)
	}
	t.store.writers[partID] = t
	t.locked[partID] = true
	return nil
}

func (t *storeTx) InsertBatch(_ context.Context, b inventory.Batch) (inventory.Batch, error) {
	if t.store.FailOn == "InsertBatch" {
		return inventory.Batch{}, ErrInjected
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.state.nextBatch++
	b.ID = t.store.state.nextBatch
	b.CreatedAt = t.store.clock()
	t.store.state.batches[b.ID] = b
	id := b.ID
	t.undo = append(t.undo, func() { delete(t.store.state.batches, id) })
	return b, nil
}

func (t *storeTx) UpdateBatchRemaining(_ context.Context, batchID int64, remaining decimal.Decimal) error {
	if t.store.FailOn == "UpdateBatchRemaining" {
		return ErrInjected
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	b, ok := t.store.state.batches[batchID]
	if !ok {
		return inventory.ErrBatchNotFound
	}
	prev := b
	b.QuantityRemaining = remaining
	t.store.state.batches[batchID] = b
	t.undo = append(t.undo, func() { t.store.state.batches[batchID] = prev })
	return nil
}

func (t *storeTx) InsertTransaction(_ context.Context, txn inventory.Transaction) (inventory.Transaction, error) {
	if t.store.FailOn == "InsertTransaction" {
		return inventory.Transaction{}, ErrInjected
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.state.nextTx++
	txn.ID = t.store.state.nextTx
	txn.CreatedAt = t.store.clock()
	t.store.state.transactions = append(t.store.state.transactions, txn)
	id := txn.ID
	t.undo = append(t.undo, func() {
		t.store.state.transactions = slices.DeleteFunc(t.store.state.transactions, func(x inventory.Transaction) bool { return x.ID == id })
	})
	return txn, nil
}

func (t *storeTx) InsertUsages(_ context.Context, usages []inventory.UsageRecord) error {
	if t.store.FailOn == "InsertUsages" {
		return ErrInjected
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	ids := make(map[int64]bool, len(usages))
	for _, u := range usages {
		t.store.state.nextUsage++
		u.ID = t.store.state.nextUsage
		u.CreatedAt = t.store.clock()
		t.store.state.usages = append(t.store.state.usages, u)
		ids[u.ID] = true
	}
	t.undo = append(t.undo, func() {
		t.store.state.usages = slices.DeleteFunc(t.store.state.usages, func(x inventory.UsageRecord) bool { return ids[x.ID] })
	})
	return nil
}

// Parts is an in-memory inventory.PartLookup.
type Parts struct {
	mu    sync.Mutex
	parts map[int64]catalog.Part
	store *Store
}

// NewParts returns a lookup that also registers parts with store.
func NewParts(store *Store) *Parts {
	return &Parts{parts: make(map[int64]catalog.Part), store: store}
}

// Add registers an active part and returns it.
func (p *Parts) Add(part catalog.Part) catalog.Part {
	p.mu.Lock()
	defer p.mu.Unlock()
	if part.Status == "" {
		part.Status = catalog.PartActive
	}
	p.parts[part.ID] = part
	if p.store != nil {
		p.store.RegisterPart(part.ID)
	}
	return part
}

// Deactivate tombstones a part.
func (p *Parts) Deactivate(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	part := p.parts[id]
	part.Status = catalog.PartInactive
	p.parts[id] = part
}

// Get implements inventory.PartLookup.
func (p *Parts) Get(_ context.Context, id int64) (catalog.Part, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	part, ok := p.parts[id]
	if !ok {
		return catalog.Part{}, catalog.ErrPartNotFound
	}
	return part, nil
}

// ListActiveIDs returns active part ids in ascending order.
func (p *Parts) ListActiveIDs(_ context.Context) ([]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []int64
	for id, part := range p.parts {
		if part.Active() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Scopes is an in-memory inventory.LocationScope keyed by location id.
type Scopes map[int64][]int64

// Scope implements inventory.LocationScope.
func (s Scopes) Scope(_ context.Context, id int64) ([]int64, error) {
	ids, ok := s[id]
	if !ok {
		return nil, locations.ErrLocationNotFound
	}
	return ids, nil
}
