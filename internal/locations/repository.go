package locations

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/garage-inventory/internal/platform/db"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL location repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func scanLocation(row pgx.Row) (Location, error) {
	var loc Location
	var kind string
	if err := row.Scan(&loc.ID, &loc.Code, &loc.Name, &kind, &loc.ParentID, &loc.CreatedAt); err != nil {
		return Location{}, err
	}
	loc.Kind = Kind(kind)
	return loc, nil
}

func (r *repository) Create(ctx context.Context, loc Location) (Location, error) {
	created, err := scanLocation(db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO locations (code, name, kind, parent_id)
VALUES ($1, $2, $3, $4) RETURNING id, code, name, kind, parent_id, created_at`, loc.Code, loc.Name, string(loc.Kind), loc.ParentID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Location{}, ErrDuplicateCode
		}
		return Location{}, err
	}
	return created, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Location, error) {
	loc, err := scanLocation(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id, code, name, kind, parent_id, created_at FROM locations WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, ErrLocationNotFound
	}
	return loc, err
}

func (r *repository) Children(ctx context.Context, parentID int64) ([]Location, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, code, name, kind, parent_id, created_at FROM locations WHERE parent_id=$1 ORDER BY code`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (r *repository) Subtree(ctx context.Context, id int64) ([]int64, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `WITH RECURSIVE tree AS (
    SELECT id FROM locations WHERE id = $1
    UNION ALL
    SELECT l.id FROM locations l JOIN tree t ON l.parent_id = t.id
)
SELECT id FROM tree ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
