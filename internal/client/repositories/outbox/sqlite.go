package outbox

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/dbx"
)

const columns = `id, change_id, owner_id, entity, op, local_key, remote_id, payload, created_at, retry_count, last_error`

// SQLiteRepository implements Repository on top of a DBTX.
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, item *models.OutboxItem) error {
	if err := item.Entity.Validate(); err != nil {
		return err
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = r.now()
	}
	item.CreatedAt = item.CreatedAt.UTC()
	if item.ChangeID == "" {
		item.ChangeID = ulid.MustNew(ulid.Timestamp(item.CreatedAt), rand.Reader).String()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox (change_id, owner_id, entity, op, local_key, remote_id, payload, created_at, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ChangeID, item.OwnerID, string(item.Entity), string(item.Op), item.LocalKey, item.RemoteID,
		item.Payload, item.CreatedAt.UnixNano(), item.RetryCount, item.LastError)
	if err != nil {
		return dbx.Fault("enqueue "+string(item.Op)+" "+string(item.Entity), err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return dbx.Fault("read outbox id", err)
	}
	item.ID = id
	return nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.OutboxItem, error) {
	return r.list(ctx, `SELECT `+columns+` FROM outbox WHERE owner_id = ? ORDER BY id`, ownerID)
}

func (r *SQLiteRepository) Exhausted(ctx context.Context, ownerID string, threshold int) ([]models.OutboxItem, error) {
	return r.list(ctx, `SELECT `+columns+` FROM outbox WHERE owner_id = ? AND retry_count > ? ORDER BY id`, ownerID, threshold)
}

func (r *SQLiteRepository) Has(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE id = ?`, id).Scan(&n); err != nil {
		return false, dbx.Fault(fmt.Sprintf("look up outbox[%d]", id), err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return dbx.Fault(fmt.Sprintf("remove outbox[%d]", id), err)
	}
	return nil
}

func (r *SQLiteRepository) RecordFailure(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = ? WHERE id = ?`, msg, id)
	if err != nil {
		return dbx.Fault(fmt.Sprintf("record failure of outbox[%d]", id), err)
	}
	if err := dbx.ExpectOne(res); err != nil && !errors.Is(err, dbx.ErrNoRowsAffected) {
		return dbx.Fault(fmt.Sprintf("record failure of outbox[%d]", id), err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveByLocalKey(ctx context.Context, ownerID string, entity models.Entity, localKey int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox WHERE owner_id = ? AND entity = ? AND local_key = ?`, ownerID, string(entity), localKey)
	if err != nil {
		return 0, dbx.Fault(fmt.Sprintf("remove outbox items of %s[%d]", entity, localKey), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.Fault("rows affected", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Retarget(ctx context.Context, ownerID string, entity models.Entity, from, to int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET local_key = ? WHERE owner_id = ? AND entity = ? AND local_key = ?`, to, ownerID, string(entity), from)
	if err != nil {
		return 0, dbx.Fault(fmt.Sprintf("retarget outbox items of %s[%d]", entity, from), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.Fault("rows affected", err)
	}
	return n, nil
}

func (r *SQLiteRepository) PendingFor(ctx context.Context, ownerID string, entity models.Entity, localKey int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE owner_id = ? AND entity = ? AND local_key = ?`,
		ownerID, string(entity), localKey).Scan(&n)
	if err != nil {
		return 0, dbx.Fault(fmt.Sprintf("count outbox items of %s[%d]", entity, localKey), err)
	}
	return n, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, dbx.Fault("count outbox", err)
	}
	return n, nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.OutboxItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.Fault("list outbox", err)
	}
	defer rows.Close()

	var items []models.OutboxItem
	for rows.Next() {
		var (
			it         models.OutboxItem
			entity, op string
			payload    []byte
			created    int64
			lastError  sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.ChangeID, &it.OwnerID, &entity, &op, &it.LocalKey, &it.RemoteID,
			&payload, &created, &it.RetryCount, &lastError); err != nil {
			return nil, dbx.Fault("scan outbox row", err)
		}
		it.Entity = models.Entity(entity)
		it.Op = models.Operation(op)
		it.Payload = payload
		it.CreatedAt = time.Unix(0, created).UTC()
		it.LastError = lastError.String
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Fault("iterate outbox rows", err)
	}
	return items, nil
}
