// Package store opens the local SQLite database and exposes one repository
// per collection: the four entity tables, the outbox and metadata.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/nutrisync/internal/client/migrations"
	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/records"
	"github.com/dmitrijs2005/nutrisync/internal/dbx"
	"github.com/dmitrijs2005/nutrisync/internal/filex"

	_ "modernc.org/sqlite"
)

// ErrStoreFault is wrapped by every storage failure reported by the store.
var ErrStoreFault = dbx.ErrStoreFault

// Store is the local store of one device.
type Store struct {
	db *sql.DB

	Foods    *records.SQLiteRepository[models.Food]
	Entries  *records.SQLiteRepository[models.DiaryEntry]
	Weights  *records.SQLiteRepository[models.Weight]
	Water    *records.SQLiteRepository[models.Water]
	Outbox   *outbox.SQLiteRepository
	Metadata *metadata.SQLiteRepository
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema. Reopening the same path yields the same data.
//
// The connection is configured with WAL journaling, NORMAL synchronous
// mode, a 5s busy timeout and a single open connection.
func Open(ctx context.Context, path string) (*Store, error) {
	abs, err := filex.EnsureParentDir(path)
	if err != nil {
		return nil, dbx.Fault("prepare store directory", err)
	}

	db, err := sql.Open("sqlite", abs)
	if err != nil {
		return nil, dbx.Fault("open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dbx.Fault("connect to database", err)
	}
	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, dbx.Fault("apply pragmas", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, dbx.Fault("migrate database", err)
	}

	return New(db), nil
}

// New wires the repositories over an already migrated database.
func New(db *sql.DB) *Store {
	s := bind(db)
	s.db = db
	return s
}

func bind(h dbx.DBTX) *Store {
	return &Store{
		Foods:    records.NewSQLiteRepository[models.Food](h),
		Entries:  records.NewSQLiteRepository[models.DiaryEntry](h),
		Weights:  records.NewSQLiteRepository[models.Weight](h),
		Water:    records.NewSQLiteRepository[models.Water](h),
		Outbox:   outbox.NewSQLiteRepository(h),
		Metadata: metadata.NewSQLiteRepository(h),
	}
}

// WithTx runs fn with a Store whose repositories share one transaction,
// committed when fn returns nil. The store holds a single connection, so fn
// must only use the Store it is given and must not block on the network.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, h dbx.DBTX) error {
		return fn(bind(h))
	})
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}
