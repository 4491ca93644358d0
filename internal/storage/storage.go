// Package storage persists viewpoint records in Postgres. Lower-level store
// failures are translated into a single client-facing error type carrying an
// HTTP-style status code; malformed rows are reported distinctly from an
// unavailable store.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tileview/internal/models"
)

// listPageSize bounds the internal page size used when a caller asks for the
// full unpaged listing.
const listPageSize = 100

const uniqueViolation = "23505"

type Store struct {
	pool  *pgxpool.Pool
	table string
}

func New(ctx context.Context, dsn, table string) (*Store, error) {
	const op = "storage.New"

	if err := runMigrations(dsn); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Store{pool: pool, table: table}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const recordColumns = `id, name, status, bucket_name, object_key, tile_size, range_adjustment,
	 COALESCE(local_path, ''), COALESCE(error_message, ''), COALESCE(expire_time, 0)`

// Get returns the record for id or models.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.ViewpointRecord, error) {
	const op = "storage.Get"

	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, recordColumns, s.table), id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, translate(op, err)
	}
	return rec, nil
}

// List returns records in id order, excluding soft-deleted ones. A non-positive
// limit drains the store by transparently following the internal pagination;
// otherwise at most limit records are returned together with a token naming
// the id to resume after when more exist.
func (s *Store) List(ctx context.Context, limit int, afterID string) ([]models.ViewpointRecord, string, error) {
	const op = "storage.List"

	if limit <= 0 {
		var all []models.ViewpointRecord
		cursor := afterID
		for {
			page, next, err := s.listPage(ctx, listPageSize, cursor)
			if err != nil {
				return nil, "", fmt.Errorf("%s: %w", op, err)
			}
			all = append(all, page...)
			if next == "" {
				return all, "", nil
			}
			cursor = next
		}
	}

	items, next, err := s.listPage(ctx, limit, afterID)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	return items, next, nil
}

func (s *Store) listPage(ctx context.Context, limit int, afterID string) ([]models.ViewpointRecord, string, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s
		 WHERE status <> $1 AND ($2 = '' OR id > $2)
		 ORDER BY id
		 LIMIT $3`, recordColumns, s.table),
		string(models.StatusDeleted), afterID, limit+1)
	if err != nil {
		return nil, "", translate("storage.listPage", err)
	}
	defer rows.Close()

	var items []models.ViewpointRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, "", translate("storage.listPage", err)
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", translate("storage.listPage", err)
	}

	next := ""
	if len(items) > limit {
		items = items[:limit]
		next = items[limit-1].ID
	}
	return items, next, nil
}

// Insert stores a new record, failing with models.ErrAlreadyExists when the
// id is taken.
func (s *Store) Insert(ctx context.Context, rec *models.ViewpointRecord) error {
	const op = "storage.Insert"

	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s
		 (id, name, status, bucket_name, object_key, tile_size, range_adjustment, local_path, error_message, expire_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, 0))`, s.table),
		rec.ID, rec.Name, string(rec.Status), rec.BucketName, rec.ObjectKey,
		rec.TileSize, string(rec.RangeAdjustment), rec.LocalPath, rec.ErrorMessage, rec.ExpireTime)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", op, models.ErrAlreadyExists)
		}
		return translate(op, err)
	}
	return nil
}

// Update replaces all mutable fields of the record in a single statement, so
// a partial field update is never visible. Fails with models.ErrNotFound
// when the id is absent.
func (s *Store) Update(ctx context.Context, rec *models.ViewpointRecord) error {
	const op = "storage.Update"

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET
		 name = $2, status = $3, tile_size = $4, range_adjustment = $5,
		 local_path = NULLIF($6, ''), error_message = NULLIF($7, ''), expire_time = NULLIF($8, 0)
		 WHERE id = $1`, s.table),
		rec.ID, rec.Name, string(rec.Status), rec.TileSize, string(rec.RangeAdjustment),
		rec.LocalPath, rec.ErrorMessage, rec.ExpireTime)
	if err != nil {
		return translate(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// Delete removes the record. Deleting an id that is already absent reports
// models.ErrNotFound rather than succeeding silently.
func (s *Store) Delete(ctx context.Context, id string) error {
	const op = "storage.Delete"

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return translate(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// DeleteExpired reaps records whose retention window lapsed before now. It
// returns the ids it removed.
func (s *Store) DeleteExpired(ctx context.Context, now int64) ([]string, error) {
	const op = "storage.DeleteExpired"

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE expire_time IS NOT NULL AND expire_time < $1`, s.table), now)
	if err != nil {
		return nil, translate(op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translate(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(op, err)
	}

	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		switch err := s.Delete(ctx, id); {
		case err == nil:
			removed = append(removed, id)
		case errors.Is(err, models.ErrNotFound):
			// A concurrent reaper won the race, nothing to do.
		default:
			return removed, err
		}
	}
	return removed, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*models.ViewpointRecord, error) {
	var rec models.ViewpointRecord
	var status, adjustment string
	err := row.Scan(&rec.ID, &rec.Name, &status, &rec.BucketName, &rec.ObjectKey,
		&rec.TileSize, &adjustment, &rec.LocalPath, &rec.ErrorMessage, &rec.ExpireTime)
	if err != nil {
		return nil, err
	}
	rec.Status = models.ViewpointStatus(status)
	rec.RangeAdjustment = models.RangeAdjustment(adjustment)
	if rec.ID == "" || rec.Status == "" {
		return nil, models.MalformedRecord("viewpoint row is missing required fields", nil)
	}
	return &rec, nil
}

// translate maps lower-level store errors onto the single client-facing
// error type. Scan and decode problems are malformed-row reports; anything
// else from the driver counts as the store being unavailable.
func translate(op string, err error) error {
	var statusErr *models.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Errorf("%s: %w", op, statusErr)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, models.StoreUnavailable("cannot reach the viewpoint status table", err))
}
