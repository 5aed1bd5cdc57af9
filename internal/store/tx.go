package store

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"campusattend/internal/attendance"
	"campusattend/internal/credential"
)

// Repos are the repositories a unit of work writes through.
type Repos struct {
	Credentials credential.Repository
	Attendance  attendance.Repository
}

// Transactor runs fn as one unit of work. If fn returns an error nothing
// it wrote is kept.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Repos) error) error
}

// PostgresTx binds the Postgres repositories to a single *sql.Tx.
type PostgresTx struct {
	db *sql.DB
}

func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db}
}

func (t *PostgresTx) WithinTx(ctx context.Context, fn func(Repos) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	err = fn(Repos{
		Credentials: credential.NewPostgresRepository(tx),
		Attendance:  attendance.NewPostgresRepository(tx),
	})
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// MemoryTx serializes units of work on a mutex. The in-memory repositories
// cannot roll back, so fn must do its failing checks before its first write.
type MemoryTx struct {
	mu    sync.Mutex
	repos Repos
}

func NewMemoryTx(creds *credential.MemoryRepository, entries *attendance.MemoryRepository) *MemoryTx {
	return &MemoryTx{repos: Repos{Credentials: creds, Attendance: entries}}
}

func (t *MemoryTx) WithinTx(ctx context.Context, fn func(Repos) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(t.repos)
}
