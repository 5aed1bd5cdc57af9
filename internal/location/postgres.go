package location

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"campusattend/internal/dbtx"
)

// PostgresRepository persists locations in Postgres.
type PostgresRepository struct {
	db dbtx.DBTX
}

func NewPostgresRepository(db dbtx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectLocation = `SELECT id, name, lat_e7, lng_e7, radius_m, created_at, updated_at FROM locations`

func scanLocation(s interface{ Scan(...any) error }) (Location, error) {
	var l Location
	err := s.Scan(&l.ID, &l.Name, &l.Center.LatE7, &l.Center.LngE7, &l.RadiusMeters, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Location, error) {
	l, err := scanLocation(r.db.QueryRowContext(ctx, selectLocation+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, notFound(id)
	}
	if err != nil {
		return Location{}, errors.Wrap(err, "get location")
	}
	return l, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Location, error) {
	rows, err := r.db.QueryContext(ctx, selectLocation+` ORDER BY name, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list locations")
	}
	defer rows.Close()
	var res []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan location")
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r *PostgresRepository) Insert(ctx context.Context, loc Location) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, lat_e7, lng_e7, radius_m, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, loc.ID, loc.Name, loc.Center.LatE7, loc.Center.LngE7, loc.RadiusMeters, loc.CreatedAt, loc.UpdatedAt)
	return errors.Wrap(err, "insert location")
}

func (r *PostgresRepository) Update(ctx context.Context, loc Location) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE locations
		SET name = $2, lat_e7 = $3, lng_e7 = $4, radius_m = $5, updated_at = $6
		WHERE id = $1
	`, loc.ID, loc.Name, loc.Center.LatE7, loc.Center.LngE7, loc.RadiusMeters, loc.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "update location")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(loc.ID)
	}
	return nil
}
