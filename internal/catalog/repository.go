package catalog

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/garage-inventory/internal/platform/db"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL part repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const partColumns = `id, code, name, uom, minimum_stock, sale_price, vat_rate, COALESCE(costing_method, ''), status, deactivated_at, created_at, updated_at`

func scanPart(row pgx.Row) (Part, error) {
	var p Part
	var method, status string
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.UOM, &p.MinimumStock, &p.SalePrice, &p.VATRate, &method, &status, &p.DeactivatedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Part{}, err
	}
	p.CostingMethod = CostingMethod(method)
	p.Status = PartStatus(status)
	return p, nil
}

func (r *repository) Create(ctx context.Context, part Part) (Part, error) {
	var method *string
	if part.CostingMethod != "" {
		m := string(part.CostingMethod)
		method = &m
	}
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO parts (code, name, uom, minimum_stock, sale_price, vat_rate, costing_method, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+partColumns, part.Code, part.Name, part.UOM, part.MinimumStock, part.SalePrice, part.VATRate, method, string(part.Status))
	created, err := scanPart(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Part{}, ErrDuplicateCode
		}
		return Part{}, err
	}
	return created, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Part, error) {
	part, err := scanPart(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Part{}, ErrPartNotFound
	}
	return part, err
}

// List uses a dynamic query because filters are optional.
func (r *repository) List(ctx context.Context, filters ListFilters) ([]Part, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM parts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + partColumns + ` FROM parts` + where + ` ORDER BY code ASC`
	if filters.Limit > 0 {
		args = append(args, filters.Limit, (filters.Page-1)*filters.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var parts []Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, 0, err
		}
		parts = append(parts, p)
	}
	return parts, total, rows.Err()
}

func (r *repository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id FROM parts WHERE status='ACTIVE' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *repository) Deactivate(ctx context.Context, id int64, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE parts SET status='INACTIVE', deactivated_at=$2, updated_at=$2 WHERE id=$1 AND status='ACTIVE'`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartNotFound
	}
	return nil
}
