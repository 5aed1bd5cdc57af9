package credential

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"campusattend/internal/apperr"
	"campusattend/internal/dbtx"
)

const credentialIDConstraint = "credentials_credential_id_key"

type PostgresRepository struct {
	db dbtx.DBTX
}

func NewPostgresRepository(db dbtx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, studentID string) (Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, credential_id, public_key, sign_count, created_at, last_used_at
		FROM credentials WHERE student_id = $1
	`, studentID)
	var c Credential
	var lastUsed sql.NullTime
	if err := row.Scan(&c.StudentID, &c.CredentialID, &c.PublicKey, &c.SignCount, &c.CreatedAt, &lastUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, unregistered(studentID)
		}
		return Credential{}, errors.Wrap(err, "get credential")
	}
	if lastUsed.Valid {
		c.LastUsedAt = &lastUsed.Time
	}
	return c, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, c Credential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (student_id, credential_id, public_key, sign_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.StudentID, c.CredentialID, c.PublicKey, int64(c.SignCount), c.CreatedAt)
	if constraint, ok := dbtx.UniqueViolation(err); ok {
		if constraint == credentialIDConstraint {
			return apperr.ErrDuplicateCredentialID
		}
		return apperr.ErrAlreadyRegistered
	}
	return errors.Wrap(err, "insert credential")
}

// AdvanceCounter is a compare-and-swap on sign_count; the row lock taken by
// the UPDATE serializes concurrent assertions for the same student.
func (r *PostgresRepository) AdvanceCounter(ctx context.Context, studentID string, newCount uint32, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE credentials
		SET sign_count = $2, last_used_at = $3
		WHERE student_id = $1 AND sign_count < $2
	`, studentID, int64(newCount), at)
	if err != nil {
		return false, errors.Wrap(err, "advance counter")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "advance counter")
	}
	return n == 1, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, studentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE student_id = $1`, studentID)
	if err != nil {
		return errors.Wrap(err, "delete credential")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return unregistered(studentID)
	}
	return nil
}
