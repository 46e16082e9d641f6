package alerts

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

// NewRepository returns the PostgreSQL alert repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const alertColumns = `id, part_id, type, severity, message, resolved, resolved_at, resolved_by, resolution_note, first_raised_at, last_raised_at`

func scanAlert(row pgx.Row) (Alert, error) {
	var a Alert
	var typ, sev string
	err := row.Scan(&a.ID, &a.PartID, &typ, &sev, &a.Message, &a.Resolved, &a.ResolvedAt, &a.ResolvedBy, &a.ResolutionNote, &a.FirstRaisedAt, &a.LastRaisedAt)
	if err != nil {
		return Alert{}, err
	}
	a.Type = Type(typ)
	a.Severity = Severity(sev)
	return a, nil
}

func (r *repository) Upsert(ctx context.Context, alert Alert, reopen bool) (Alert, error) {
	return scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO inventory_alerts (part_id, type, severity, message, first_raised_at, last_raised_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (part_id, type) DO UPDATE SET
    severity = EXCLUDED.severity,
    message = EXCLUDED.message,
    last_raised_at = EXCLUDED.last_raised_at,
    resolved = CASE WHEN $6 AND inventory_alerts.resolved_at < EXCLUDED.last_raised_at THEN FALSE ELSE inventory_alerts.resolved END,
    resolved_at = CASE WHEN $6 AND inventory_alerts.resolved_at < EXCLUDED.last_raised_at THEN NULL ELSE inventory_alerts.resolved_at END,
    resolved_by = CASE WHEN $6 AND inventory_alerts.resolved_at < EXCLUDED.last_raised_at THEN NULL ELSE inventory_alerts.resolved_by END
RETURNING `+alertColumns, alert.PartID, string(alert.Type), string(alert.Severity), alert.Message, alert.LastRaisedAt, reopen))
}

func (r *repository) Get(ctx context.Context, id int64) (Alert, error) {
	alert, err := scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+alertColumns+` FROM inventory_alerts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, ErrAlertNotFound
	}
	return alert, err
}

func (r *repository) List(ctx context.Context, resolved *bool) ([]Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM inventory_alerts`
	var args []any
	if resolved != nil {
		query += ` WHERE resolved=$1`
		args = append(args, *resolved)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query+` ORDER BY last_raised_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) SetResolved(ctx context.Context, id int64, resolved bool, actorID int64, at time.Time, note string) (Alert, error) {
	var row pgx.Row
	conn := db.Conn(ctx, r.pool)
	if resolved {
		row = conn.QueryRow(ctx, `UPDATE inventory_alerts SET resolved=TRUE, resolved_at=$2, resolved_by=$3, resolution_note=$4
WHERE id=$1 AND resolved=FALSE RETURNING `+alertColumns, id, at, actorID, note)
	} else {
		row = conn.QueryRow(ctx, `UPDATE inventory_alerts SET resolved=FALSE, resolved_at=NULL, resolved_by=NULL, resolution_note=''
WHERE id=$1 AND resolved=TRUE RETURNING `+alertColumns, id)
	}
	alert, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, fmt.Errorf("%w: alert %d resolved=%t", shared.ErrInvalidStateTransition, id, !resolved)
	}
	return alert, err
}
