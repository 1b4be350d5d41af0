package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/asset_bootstrap/internal/asset"
	"github.com/italolelis/asset_bootstrap/internal/storage"
)

const fetchColumns = `handle, asset_id, url, destination, label, status, bytes, error, owner, created_at, updated_at`

type FetchRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewFetchRepository(dbConn *sql.DB) *FetchRepository {
	return &FetchRepository{db: dbConn, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFetch(row rowScanner) (storage.FetchRecord, error) {
	var (
		rec                  storage.FetchRecord
		assetID, status      string
		createdAt, updatedAt string
	)

	err := row.Scan(&rec.Handle, &assetID, &rec.URL, &rec.Destination, &rec.Label, &status,
		&rec.Bytes, &rec.Error, &rec.Owner, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.FetchRecord{}, storage.ErrNotFound
		}

		return storage.FetchRecord{}, err
	}

	rec.AssetID = asset.ID(assetID)
	rec.Status = storage.FetchStatus(status)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return rec, nil
}

func (r *FetchRepository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

// CreateFetch journals a pending fetch. The partial unique index on active rows backs the
// lookup-then-insert, which runs in one immediate transaction.
func (r *FetchRepository) CreateFetch(ctx context.Context, req asset.FetchRequest, owner string) (storage.FetchRecord, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.FetchRecord{}, false, err
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := scanFetch(tx.QueryRowContext(ctx,
		`SELECT `+fetchColumns+` FROM fetches WHERE asset_id = ? AND status IN ('pending', 'running')`,
		string(req.Asset)))
	if err == nil {
		return existing, false, nil
	}

	if !errors.Is(err, storage.ErrNotFound) {
		return storage.FetchRecord{}, false, err
	}

	issued := req.IssuedAt
	if issued.IsZero() {
		issued = r.now()
	}

	created := issued.UTC().Format(time.RFC3339Nano)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO fetches (asset_id, url, destination, label, status, owner, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?, ?)`,
		string(req.Asset), req.URL, req.Destination, req.Label, owner, created, r.timestamp())
	if err != nil {
		return storage.FetchRecord{}, false, fmt.Errorf("failed to insert fetch: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return storage.FetchRecord{}, false, err
	}

	rec, err := scanFetch(tx.QueryRowContext(ctx, `SELECT `+fetchColumns+` FROM fetches WHERE handle = ?`, id))
	if err != nil {
		return storage.FetchRecord{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return storage.FetchRecord{}, false, err
	}

	return rec, true, nil
}

// UpdateFetchStatus moves a fetch forward. Terminal records are never changed again.
func (r *FetchRepository) UpdateFetchStatus(ctx context.Context, handle asset.Handle, status storage.FetchStatus, bytes int64, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE fetches SET status = ?, bytes = ?, error = ?, updated_at = ?
		WHERE handle = ? AND status IN ('pending', 'running')`,
		string(status), bytes, errMsg, r.timestamp(), int64(handle))
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("%w: no active fetch with handle %d", storage.ErrNotFound, handle)
	}

	return nil
}

func (r *FetchRepository) FailInterrupted(ctx context.Context, owner string) ([]storage.FetchRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT `+fetchColumns+` FROM fetches WHERE status IN ('pending', 'running') AND owner != ? ORDER BY handle`, owner)
	if err != nil {
		return nil, err
	}

	interrupted, err := collect(rows)
	if err != nil {
		return nil, err
	}

	now := r.timestamp()

	for i := range interrupted {
		if _, err := tx.ExecContext(ctx,
			`UPDATE fetches SET status = 'failed', error = 'interrupted', updated_at = ? WHERE handle = ?`,
			now, int64(interrupted[i].Handle)); err != nil {
			return nil, err
		}

		interrupted[i].Status = storage.FetchFailed
		interrupted[i].Error = "interrupted"
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return interrupted, nil
}

func (r *FetchRepository) GetFetch(ctx context.Context, handle asset.Handle) (storage.FetchRecord, error) {
	return scanFetch(r.db.QueryRowContext(ctx, `SELECT `+fetchColumns+` FROM fetches WHERE handle = ?`, int64(handle)))
}

func (r *FetchRepository) ActiveFetch(ctx context.Context, assetID asset.ID) (storage.FetchRecord, error) {
	return scanFetch(r.db.QueryRowContext(ctx,
		`SELECT `+fetchColumns+` FROM fetches WHERE asset_id = ? AND status IN ('pending', 'running')`, string(assetID)))
}

// LatestByDestination returns the most recent fetch that wrote to destination.
func (r *FetchRepository) LatestByDestination(ctx context.Context, destination string) (storage.FetchRecord, error) {
	return scanFetch(r.db.QueryRowContext(ctx,
		`SELECT `+fetchColumns+` FROM fetches WHERE destination = ? ORDER BY handle DESC LIMIT 1`, destination))
}

// ListFetches returns the newest records first. limit <= 0 means no limit.
func (r *FetchRepository) ListFetches(ctx context.Context, limit int) ([]storage.FetchRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+fetchColumns+` FROM fetches ORDER BY handle DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	return collect(rows)
}

func collect(rows *sql.Rows) ([]storage.FetchRecord, error) {
	defer rows.Close()

	var records []storage.FetchRecord

	for rows.Next() {
		rec, err := scanFetch(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}
