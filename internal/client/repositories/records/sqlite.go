package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/dbx"
)

const columns = `local_key, remote_id, owner_id, data, created_at, updated_at, synced, deleted`

// SQLiteRepository implements Repository on top of a DBTX.
type SQLiteRepository[T models.Payload] struct {
	db     dbx.DBTX
	entity models.Entity
	table  string
}

// NewSQLiteRepository returns the repository of the entity whose payload
// type is T.
func NewSQLiteRepository[T models.Payload](db dbx.DBTX) *SQLiteRepository[T] {
	var zero T
	e := zero.Entity()
	return &SQLiteRepository[T]{db: db, entity: e, table: e.Collection()}
}

// Entity returns the collection this repository serves.
func (r *SQLiteRepository[T]) Entity() models.Entity {
	return r.entity
}

func (r *SQLiteRepository[T]) Add(ctx context.Context, rec *models.Record[T]) (int64, error) {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s: %w", r.entity, err)
	}

	rec.CreatedAt = normalize(rec.CreatedAt)
	rec.UpdatedAt = normalize(rec.UpdatedAt)

	query := fmt.Sprintf(`INSERT INTO %s (remote_id, owner_id, day, data, created_at, updated_at, synced, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, r.table)
	res, err := r.db.ExecContext(ctx, query,
		nullString(rec.RemoteID), rec.OwnerID, rec.Data.Day(), data,
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
		dbx.BoolInt(rec.Synced), dbx.BoolInt(rec.Deleted))
	if err != nil {
		return 0, dbx.Fault("add "+string(r.entity), err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, dbx.Fault("read key of "+string(r.entity), err)
	}
	rec.LocalKey = id
	return id, nil
}

func (r *SQLiteRepository[T]) Get(ctx context.Context, localKey int64) (*models.Record[T], error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE local_key = ?`, columns, r.table)
	rec, err := r.scan(r.db.QueryRowContext(ctx, query, localKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbx.Fault(fmt.Sprintf("get %s[%d]", r.entity, localKey), err)
	}
	return rec, nil
}

func (r *SQLiteRepository[T]) FindByRemoteID(ctx context.Context, ownerID, remoteID string) (*models.Record[T], error) {
	// a pending-delete row wins over a live one so a pull cannot resurrect it
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = ? AND remote_id = ?
		ORDER BY deleted DESC, local_key LIMIT 1`, columns, r.table)
	rec, err := r.scan(r.db.QueryRowContext(ctx, query, ownerID, remoteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbx.Fault(fmt.Sprintf("find %s by remote id %s", r.entity, remoteID), err)
	}
	return rec, nil
}

func (r *SQLiteRepository[T]) QueryByOwner(ctx context.Context, ownerID string, f models.Filter) ([]models.Record[T], error) {
	var (
		where = []string{"owner_id = ?", "deleted = 0"}
		args  = []any{ownerID}
	)
	switch {
	case f.Date != "":
		where = append(where, "day = ?")
		args = append(args, f.Date)
	default:
		if f.From != "" {
			where = append(where, "day >= ?")
			args = append(args, f.From)
		}
		if f.To != "" {
			where = append(where, "day <= ?")
			args = append(args, f.To)
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY day, local_key`,
		columns, r.table, strings.Join(where, " AND "))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.Fault("query "+r.table, err)
	}
	defer rows.Close()

	var result []models.Record[T]
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, dbx.Fault("scan "+r.table, err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Fault("iterate "+r.table, err)
	}
	return result, nil
}

func (r *SQLiteRepository[T]) Update(ctx context.Context, localKey int64, p models.Patch[T]) error {
	if p.Empty() {
		return nil
	}

	var (
		set  []string
		args []any
	)
	if p.RemoteID != nil {
		set = append(set, "remote_id = ?")
		args = append(args, nullString(*p.RemoteID))
	}
	if p.Data != nil {
		data, err := json.Marshal(*p.Data)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", r.entity, err)
		}
		set = append(set, "data = ?", "day = ?")
		args = append(args, data, (*p.Data).Day())
	}
	if p.UpdatedAt != nil {
		set = append(set, "updated_at = ?")
		args = append(args, p.UpdatedAt.UnixNano())
	}
	if p.Synced != nil {
		set = append(set, "synced = ?")
		args = append(args, dbx.BoolInt(*p.Synced))
	}
	if p.Deleted != nil {
		set = append(set, "deleted = ?")
		args = append(args, dbx.BoolInt(*p.Deleted))
	}
	args = append(args, localKey)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE local_key = ?`, r.table, strings.Join(set, ", "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return dbx.Fault(fmt.Sprintf("update %s[%d]", r.entity, localKey), err)
	}
	if err := dbx.ExpectOne(res); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return fmt.Errorf("%s[%d]: %w", r.entity, localKey, ErrNotFound)
		}
		return dbx.Fault(fmt.Sprintf("update %s[%d]", r.entity, localKey), err)
	}
	return nil
}

func (r *SQLiteRepository[T]) Delete(ctx context.Context, localKey int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE local_key = ?`, r.table)
	if _, err := r.db.ExecContext(ctx, query, localKey); err != nil {
		return dbx.Fault(fmt.Sprintf("delete %s[%d]", r.entity, localKey), err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository[T]) scan(s scanner) (*models.Record[T], error) {
	var (
		rec              models.Record[T]
		remoteID         sql.NullString
		data             []byte
		created, updated int64
		synced, deleted  int
	)
	if err := s.Scan(&rec.LocalKey, &remoteID, &rec.OwnerID, &data, &created, &updated, &synced, &deleted); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &rec.Data); err != nil {
		return nil, fmt.Errorf("decode %s[%d]: %w", r.entity, rec.LocalKey, err)
	}
	rec.RemoteID = remoteID.String
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	rec.Synced = synced != 0
	rec.Deleted = deleted != 0
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func normalize(t time.Time) time.Time {
	return time.Unix(0, t.UnixNano()).UTC()
}
