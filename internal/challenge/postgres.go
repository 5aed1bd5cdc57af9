package challenge

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"campusattend/internal/dbtx"
)

type PostgresStore struct {
	db dbtx.DBTX
}

func NewPostgresStore(db dbtx.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Put(ctx context.Context, c Challenge) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO challenges (principal, purpose, value, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (principal, purpose) DO UPDATE SET
			value = EXCLUDED.value,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at
	`, c.Principal, string(c.Purpose), c.Value, c.IssuedAt, c.ExpiresAt)
	return errors.Wrap(err, "upsert challenge")
}

// Take deletes and returns the row in one statement, so two concurrent
// consumers cannot both receive it.
func (p *PostgresStore) Take(ctx context.Context, principal string, purpose Purpose) (Challenge, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		DELETE FROM challenges
		WHERE principal = $1 AND purpose = $2
		RETURNING value, issued_at, expires_at
	`, principal, string(purpose))
	c := Challenge{Principal: principal, Purpose: purpose}
	if err := row.Scan(&c.Value, &c.IssuedAt, &c.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Challenge{}, false, nil
		}
		return Challenge{}, false, errors.Wrap(err, "consume challenge")
	}
	return c, true, nil
}

// Sweep removes challenges that expired at or before now.
func (p *PostgresStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "cleanup challenges")
	}
	return res.RowsAffected()
}
