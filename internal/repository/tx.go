package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// withTx runs fn inside a transaction and commits when fn returns nil.  Any
// error from fn rolls the transaction back and is returned unchanged, so
// sentinel errors survive; only begin and commit failures are wrapped as
// storage failures.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}
	committed = true
	return nil
}

// storageErr tags a driver error with ErrStorageFailure while keeping the
// original error (and any context deadline inside it) reachable through
// errors.Is.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}
