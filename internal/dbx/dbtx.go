// Package dbx holds the database/sql plumbing shared by the local store
// repositories: the DBTX handle satisfied by both *sql.DB and *sql.Tx, a
// transaction helper and a couple of row-count checks.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNoRowsAffected is returned by ExpectOne when a statement matched nothing.
var ErrNoRowsAffected = errors.New("no rows affected")

// DBTX is the subset of database/sql used by the repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner starts transactions. *sql.DB implements it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise; a panic in fn rolls back and is
// re-raised. Failures to begin or commit are store faults.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "DELETE FROM outbox WHERE id = ?", id)
//	    return err
//	})
func WithTx(ctx context.Context, db TxBeginner, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return Fault("begin tx", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = Fault("commit tx", cerr)
		}
	}()

	return fn(ctx, tx)
}

// ExpectOne checks that res affected exactly one row.
func ExpectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	switch {
	case n == 0:
		return ErrNoRowsAffected
	case n > 1:
		return fmt.Errorf("wrong rows affected count: %d", n)
	}
	return nil
}

// BoolInt maps a bool onto SQLite's integer representation.
func BoolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	// ErrStoreFault marks failures of the underlying storage. Callers match
	// it with errors.Is to tell a broken store apart from a missing row.
	ErrStoreFault = errors.New("local store fault")
	// ErrConflict marks a write rejected by a table constraint. The store
	// itself is healthy; only the offending write failed.
	ErrConflict = errors.New("local store conflict")
)

// Fault wraps err as a failure of the named operation: ErrConflict for a
// constraint violation, ErrStoreFault for anything else.
func Fault(op string, err error) error {
	if IsConstraint(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, ErrConflict, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStoreFault, err)
}

// IsConstraint reports whether err is an SQLite constraint violation.
func IsConstraint(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
