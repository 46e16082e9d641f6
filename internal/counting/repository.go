package counting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/garage-inventory/internal/platform/db"
	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL counting repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, _ pgx.Tx) error {
		return fn(ctx)
	})
}

const checkColumns = `id, code, location_id, status, note, created_by, started_at, completed_at, cancelled_at, created_at`

func scanCheck(row pgx.Row) (Check, error) {
	var c Check
	var status string
	if err := row.Scan(&c.ID, &c.Code, &c.LocationID, &status, &c.Note, &c.CreatedBy, &c.StartedAt, &c.CompletedAt, &c.CancelledAt, &c.CreatedAt); err != nil {
		return Check{}, err
	}
	c.Status = CheckStatus(status)
	return c, nil
}

const checkItemColumns = `id, check_id, part_id, system_quantity, actual_quantity, discrepancy, is_adjusted, counted_by, counted_at`

func scanCheckItem(row pgx.Row) (CheckItem, error) {
	var i CheckItem
	err := row.Scan(&i.ID, &i.CheckID, &i.PartID, &i.SystemQuantity, &i.ActualQuantity, &i.Discrepancy, &i.IsAdjusted, &i.CountedBy, &i.CountedAt)
	return i, err
}

func (r *repository) CreateCheck(ctx context.Context, check Check) (Check, error) {
	created, err := scanCheck(db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO inventory_checks (code, location_id, status, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+checkColumns, check.Code, check.LocationID, string(check.Status), check.Note, check.CreatedBy, check.CreatedAt))
	if err != nil {
		return Check{}, err
	}
	created.Items = []CheckItem{}
	return created, nil
}

func (r *repository) GetCheck(ctx context.Context, id int64) (Check, error) {
	conn := db.Conn(ctx, r.pool)
	check, err := scanCheck(conn.QueryRow(ctx, `SELECT `+checkColumns+` FROM inventory_checks WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Check{}, ErrCheckNotFound
	}
	if err != nil {
		return Check{}, err
	}
	rows, err := conn.Query(ctx, `SELECT `+checkItemColumns+` FROM inventory_check_items WHERE check_id=$1 ORDER BY part_id`, id)
	if err != nil {
		return Check{}, err
	}
	defer rows.Close()
	check.Items = []CheckItem{}
	for rows.Next() {
		item, err := scanCheckItem(rows)
		if err != nil {
			return Check{}, err
		}
		check.Items = append(check.Items, item)
	}
	return check, rows.Err()
}

func (r *repository) SetCheckStatus(ctx context.Context, id int64, from, to CheckStatus, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE inventory_checks SET status=$3::text,
    started_at   = CASE WHEN $3::text = 'IN_PROGRESS' THEN $4 ELSE started_at END,
    completed_at = CASE WHEN $3::text = 'COMPLETED' THEN $4 ELSE completed_at END,
    cancelled_at = CASE WHEN $3::text = 'CANCELLED' THEN $4 ELSE cancelled_at END
WHERE id=$1 AND status=$2`, id, string(from), string(to), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: check %d is no longer %s", shared.ErrInvalidStateTransition, id, from)
	}
	return nil
}

func (r *repository) UpsertCheckItem(ctx context.Context, item CheckItem) (CheckItem, error) {
	saved, err := scanCheckItem(db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO inventory_check_items
    (check_id, part_id, system_quantity, actual_quantity, discrepancy, counted_by, counted_at)
SELECT $1::bigint, $2::bigint, $3::numeric, $4::numeric, $5::numeric, $6::bigint, $7::timestamptz
WHERE EXISTS (SELECT 1 FROM inventory_checks WHERE id=$1 AND status='IN_PROGRESS')
ON CONFLICT (check_id, part_id) DO UPDATE SET
    system_quantity = EXCLUDED.system_quantity,
    actual_quantity = EXCLUDED.actual_quantity,
    discrepancy     = EXCLUDED.discrepancy,
    counted_by      = EXCLUDED.counted_by,
    counted_at      = EXCLUDED.counted_at
RETURNING `+checkItemColumns,
		item.CheckID, item.PartID, item.SystemQuantity, item.ActualQuantity, item.Discrepancy, item.CountedBy, item.CountedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return CheckItem{}, fmt.Errorf("%w: check %d is not in progress", shared.ErrInvalidStateTransition, item.CheckID)
	}
	return saved, err
}

func (r *repository) MarkCheckItemsAdjusted(ctx context.Context, ids []int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE inventory_check_items SET is_adjusted=TRUE WHERE id = ANY($1) AND is_adjusted=FALSE`, ids)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return ErrItemAlreadyAdjusted
	}
	return nil
}

const adjustmentColumns = `id, code, check_id, location_id, status, reason, rejection_reason, created_by, decided_by, decided_at, created_at`

func scanAdjustment(row pgx.Row) (Adjustment, error) {
	var a Adjustment
	var status string
	if err := row.Scan(&a.ID, &a.Code, &a.CheckID, &a.LocationID, &status, &a.Reason, &a.RejectionReason, &a.CreatedBy, &a.DecidedBy, &a.DecidedAt, &a.CreatedAt); err != nil {
		return Adjustment{}, err
	}
	a.Status = AdjustmentStatus(status)
	return a, nil
}

const adjustmentItemColumns = `id, adjustment_id, part_id, check_item_id, quantity_change, unit_cost, restore_batch_id, system_quantity_before, system_quantity_after, transaction_id`

func scanAdjustmentItem(row pgx.Row) (AdjustmentItem, error) {
	var i AdjustmentItem
	err := row.Scan(&i.ID, &i.AdjustmentID, &i.PartID, &i.CheckItemID, &i.QuantityChange, &i.UnitCost, &i.RestoreBatchID, &i.SystemQuantityBefore, &i.SystemQuantityAfter, &i.TransactionID)
	return i, err
}

func (r *repository) CreateAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	var created Adjustment
	err := r.WithTx(ctx, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)
		var err error
		created, err = scanAdjustment(conn.QueryRow(ctx, `INSERT INTO inventory_adjustments (code, check_id, location_id, status, reason, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+adjustmentColumns, adj.Code, adj.CheckID, adj.LocationID, string(adj.Status), adj.Reason, adj.CreatedBy, adj.CreatedAt))
		if err != nil {
			return err
		}
		created.Items = make([]AdjustmentItem, 0, len(adj.Items))
		for _, item := range adj.Items {
			saved, err := scanAdjustmentItem(conn.QueryRow(ctx, `INSERT INTO inventory_adjustment_items (adjustment_id, part_id, check_item_id, quantity_change, unit_cost, restore_batch_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+adjustmentItemColumns, created.ID, item.PartID, item.CheckItemID, item.QuantityChange, item.UnitCost, item.RestoreBatchID))
			if err != nil {
				return err
			}
			created.Items = append(created.Items, saved)
		}
		return nil
	})
	return created, err
}

func (r *repository) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	adj, err := scanAdjustment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM inventory_adjustments WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Adjustment{}, ErrAdjustmentNotFound
	}
	if err != nil {
		return Adjustment{}, err
	}
	items, err := r.itemsFor(ctx, []int64{id})
	if err != nil {
		return Adjustment{}, err
	}
	adj.Items = items[id]
	return adj, nil
}

func (r *repository) ListAdjustments(ctx context.Context, status AdjustmentStatus) ([]Adjustment, error) {
	query := `SELECT ` + adjustmentColumns + ` FROM inventory_adjustments`
	var args []any
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, string(status))
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query+` ORDER BY id DESC LIMIT 200`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var (
		out []Adjustment
		ids []int64
	)
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, adj)
		ids = append(ids, adj.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *repository) itemsFor(ctx context.Context, ids []int64) (map[int64][]AdjustmentItem, error) {
	out := make(map[int64][]AdjustmentItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+adjustmentItemColumns+` FROM inventory_adjustment_items WHERE adjustment_id = ANY($1) ORDER BY adjustment_id, part_id, id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scanAdjustmentItem(rows)
		if err != nil {
			return nil, err
		}
		out[item.AdjustmentID] = append(out[item.AdjustmentID], item)
	}
	return out, rows.Err()
}

func (r *repository) DecideAdjustment(ctx context.Context, id int64, to AdjustmentStatus, actorID int64, at time.Time, rejectionReason string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE inventory_adjustments
SET status=$2, decided_by=$3, decided_at=$4, rejection_reason=$5
WHERE id=$1 AND status='PENDING'`, id, string(to), actorID, at, rejectionReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: adjustment %d already decided", shared.ErrInvalidStateTransition, id)
	}
	return nil
}

func (r *repository) UpdateAdjustmentItems(ctx context.Context, items []AdjustmentItem) error {
	conn := db.Conn(ctx, r.pool)
	for _, item := range items {
		if _, err := conn.Exec(ctx, `UPDATE inventory_adjustment_items
SET system_quantity_before=$2, system_quantity_after=$3, transaction_id=$4
WHERE id=$1`, item.ID, item.SystemQuantityBefore, item.SystemQuantityAfter, item.TransactionID); err != nil {
			return err
		}
	}
	return nil
}
