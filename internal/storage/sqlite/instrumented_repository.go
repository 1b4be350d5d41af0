package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/asset_bootstrap/internal/asset"
	"github.com/italolelis/asset_bootstrap/internal/storage"
	"github.com/italolelis/asset_bootstrap/internal/telemetry"
)

// InstrumentedFetchRepository wraps FetchRepository with telemetry.
type InstrumentedFetchRepository struct {
	repo      *FetchRepository
	telemetry *telemetry.Telemetry
}

var _ storage.FetchRepository = (*InstrumentedFetchRepository)(nil)

func NewInstrumentedFetchRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedFetchRepository {
	return &InstrumentedFetchRepository{
		repo:      NewFetchRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedFetchRepository) CreateFetch(ctx context.Context, req asset.FetchRequest, owner string) (storage.FetchRecord, bool, error) {
	var (
		rec     storage.FetchRecord
		created bool
	)

	err := r.telemetry.InstrumentDBOperation(ctx, "create_fetch", func(ctx context.Context) error {
		var err error

		rec, created, err = r.repo.CreateFetch(ctx, req, owner)

		return err
	})

	return rec, created, err
}

func (r *InstrumentedFetchRepository) UpdateFetchStatus(ctx context.Context, handle asset.Handle, status storage.FetchStatus, bytes int64, errMsg string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "update_fetch_status", func(ctx context.Context) error {
		return r.repo.UpdateFetchStatus(ctx, handle, status, bytes, errMsg)
	})
}

func (r *InstrumentedFetchRepository) FailInterrupted(ctx context.Context, owner string) ([]storage.FetchRecord, error) {
	var result []storage.FetchRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "fail_interrupted", func(ctx context.Context) error {
		var err error

		result, err = r.repo.FailInterrupted(ctx, owner)

		return err
	})

	return result, err
}

func (r *InstrumentedFetchRepository) GetFetch(ctx context.Context, handle asset.Handle) (storage.FetchRecord, error) {
	return r.one(ctx, "get_fetch", func(ctx context.Context) (storage.FetchRecord, error) {
		return r.repo.GetFetch(ctx, handle)
	})
}

func (r *InstrumentedFetchRepository) ActiveFetch(ctx context.Context, assetID asset.ID) (storage.FetchRecord, error) {
	return r.one(ctx, "active_fetch", func(ctx context.Context) (storage.FetchRecord, error) {
		return r.repo.ActiveFetch(ctx, assetID)
	})
}

func (r *InstrumentedFetchRepository) LatestByDestination(ctx context.Context, destination string) (storage.FetchRecord, error) {
	return r.one(ctx, "latest_by_destination", func(ctx context.Context) (storage.FetchRecord, error) {
		return r.repo.LatestByDestination(ctx, destination)
	})
}

func (r *InstrumentedFetchRepository) ListFetches(ctx context.Context, limit int) ([]storage.FetchRecord, error) {
	var result []storage.FetchRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_fetches", func(ctx context.Context) error {
		var err error

		result, err = r.repo.ListFetches(ctx, limit)

		return err
	})

	return result, err
}

func (r *InstrumentedFetchRepository) one(ctx context.Context, op string, fn func(context.Context) (storage.FetchRecord, error)) (storage.FetchRecord, error) {
	var rec storage.FetchRecord

	err := r.telemetry.InstrumentDBOperation(ctx, op, func(ctx context.Context) error {
		var err error

		rec, err = fn(ctx)

		return err
	})

	return rec, err
}
