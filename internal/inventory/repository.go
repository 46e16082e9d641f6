package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/platform/db"
)

// Reader exposes ledger queries.
type Reader interface {
	// ListBatches returns a part's batches ordered by received_at then id.
	ListBatches(ctx context.Context, partID int64, activeOnly bool) ([]Batch, error)
	GetBatch(ctx context.Context, id int64) (Batch, error)
	// LastTransaction returns the chain head or nil when the part has no history.
	LastTransaction(ctx context.Context, partID int64) (*Transaction, error)
	ListTransactions(ctx context.Context, filter HistoryFilter) ([]Transaction, error)
	ListUsagesByJob(ctx context.Context, jobRef uuid.UUID) ([]UsageRecord, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Reader
	// LockPart takes the row lock serialising writers of one part.
	LockPart(ctx context.Context, partID int64) error
	InsertBatch(ctx context.Context, batch Batch) (Batch, error)
	UpdateBatchRemaining(ctx context.Context, batchID int64, remaining decimal.Decimal) error
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	InsertUsages(ctx context.Context, usages []UsageRecord) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a read-committed transaction. Reads issued through
// the repository with the callback's context join the transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, _ pgx.Tx) error {
		return fn(ctx, r)
	})
}

const batchColumns = `id, part_id, location_id, batch_number, received_at, quantity_received, quantity_remaining, unit_cost, source, supplier_id, invoice_ref, has_invoice, expiry_date, created_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	var source string
	err := row.Scan(&b.ID, &b.PartID, &b.LocationID, &b.BatchNumber, &b.ReceivedAt, &b.QuantityReceived, &b.QuantityRemaining, &b.UnitCost, &source, &b.SupplierID, &b.InvoiceRef, &b.HasInvoice, &b.ExpiryDate, &b.CreatedAt)
	if err != nil {
		return Batch{}, err
	}
	b.Source = SourceType(source)
	return b, nil
}

const transactionColumns = `id, part_id, kind, quantity, quantity_before, quantity_after, unit_price, job_ref, supplier_id, batch_id, adjustment_id, note, actor_id, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var kind string
	err := row.Scan(&t.ID, &t.PartID, &kind, &t.Quantity, &t.QuantityBefore, &t.QuantityAfter, &t.UnitPrice, &t.JobRef, &t.SupplierID, &t.BatchID, &t.AdjustmentID, &t.Note, &t.ActorID, &t.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}
	t.Kind = TransactionKind(kind)
	return t, nil
}

func (r *Repository) ListBatches(ctx context.Context, partID int64, activeOnly bool) ([]Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM inventory_batches WHERE part_id=$1`
	if activeOnly {
		query += ` AND quantity_remaining > 0`
	}
	query += ` ORDER BY received_at ASC, id ASC`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, partID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *Repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	b, err := scanBatch(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+batchColumns+` FROM inventory_batches WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	return b, err
}

func (r *Repository) LastTransaction(ctx context.Context, partID int64) (*Transaction, error) {
	t, err := scanTransaction(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+transactionColumns+` FROM stock_transactions WHERE part_id=$1 ORDER BY id DESC LIMIT 1`, partID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) ListTransactions(ctx context.Context, filter HistoryFilter) ([]Transaction, error) {
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+transactionColumns+` FROM stock_transactions
WHERE part_id=$1 AND ($2::timestamptz IS NULL OR created_at >= $2) AND ($3::timestamptz IS NULL OR created_at < $3) AND id > $4
ORDER BY id ASC LIMIT $5`, filter.PartID, from, to, filter.AfterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *Repository) ListUsagesByJob(ctx context.Context, jobRef uuid.UUID) ([]UsageRecord, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, transaction_id, job_ref, part_id, batch_id, quantity, unit_cost, total_cost, costing_method, created_at
FROM stock_usages WHERE job_ref=$1 ORDER BY id ASC`, jobRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var usages []UsageRecord
	for rows.Next() {
		var u UsageRecord
		var method string
		if err := rows.Scan(&u.ID, &u.TransactionID, &u.JobRef, &u.PartID, &u.BatchID, &u.Quantity, &u.UnitCost, &u.TotalCost, &method, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Method = catalog.CostingMethod(method)
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func (r *Repository) LockPart(ctx context.Context, partID int64) error {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id FROM parts WHERE id=$1 FOR UPDATE`, partID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.ErrPartNotFound
	}
	return err
}

func (r *Repository) InsertBatch(ctx context.Context, b Batch) (Batch, error) {
	return scanBatch(db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO inventory_batches
(part_id, location_id, batch_number, received_at, quantity_received, quantity_remaining, unit_cost, source, supplier_id, invoice_ref, has_invoice, expiry_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING `+batchColumns,
		b.PartID, b.LocationID, b.BatchNumber, b.ReceivedAt, b.QuantityReceived, b.QuantityRemaining, b.UnitCost, string(b.Source), b.SupplierID, b.InvoiceRef, b.HasInvoice, b.ExpiryDate))
}

func (r *Repository) UpdateBatchRemaining(ctx context.Context, batchID int64, remaining decimal.Decimal) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE inventory_batches SET quantity_remaining=$2 WHERE id=$1`, batchID, remaining)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *Repository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	return scanTransaction(db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO stock_transactions
(part_id, kind, quantity, quantity_before, quantity_after, unit_price, job_ref, supplier_id, batch_id, adjustment_id, note, actor_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING `+transactionColumns,
		t.PartID, string(t.Kind), t.Quantity, t.QuantityBefore, t.QuantityAfter, t.UnitPrice, t.JobRef, t.SupplierID, t.BatchID, t.AdjustmentID, t.Note, t.ActorID))
}

func (r *Repository) InsertUsages(ctx context.Context, usages []UsageRecord) error {
	if len(usages) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(usages))
	for _, u := range usages {
		rows = append(rows, []any{u.TransactionID, u.JobRef, u.PartID, u.BatchID, u.Quantity, u.UnitCost, u.TotalCost, string(u.Method)})
	}
	_, err := db.Conn(ctx, r.pool).CopyFrom(ctx, pgx.Identifier{"stock_usages"},
		[]string{"transaction_id", "job_ref", "part_id", "batch_id", "quantity", "unit_cost", "total_cost", "costing_method"},
		pgx.CopyFromRows(rows))
	return err
}
