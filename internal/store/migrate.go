package store

import (
	"context"
	_ "embed"

	"github.com/pkg/errors"

	"campusattend/internal/dbtx"
)

//go:embed schema.sql
var schema string

// Migrate creates any missing tables and indexes. It is safe to run on
// every start.
func Migrate(ctx context.Context, db dbtx.DBTX) error {
	_, err := db.ExecContext(ctx, schema)
	return errors.Wrap(err, "apply schema")
}
