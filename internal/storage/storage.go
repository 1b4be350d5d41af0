package storage

import (
	"context"
	"errors"
	"time"

	"github.com/italolelis/asset_bootstrap/internal/asset"
)

var ErrNotFound = errors.New("fetch record not found")

// FetchStatus is the persisted state of one fetch: pending -> running -> succeeded|failed.
type FetchStatus string

const (
	FetchPending   FetchStatus = "pending"
	FetchRunning   FetchStatus = "running"
	FetchSucceeded FetchStatus = "succeeded"
	FetchFailed    FetchStatus = "failed"
)

// Active reports whether the fetch still counts as outstanding for its asset.
func (s FetchStatus) Active() bool {
	return s == FetchPending || s == FetchRunning
}

// FetchRecord represents one journaled fetch.
type FetchRecord struct {
	Handle      asset.Handle
	AssetID     asset.ID
	URL         string
	Destination string
	Label       string
	Status      FetchStatus
	Bytes       int64
	Error       string
	Owner       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type FetchReadRepository interface {
	GetFetch(ctx context.Context, handle asset.Handle) (FetchRecord, error)
	ActiveFetch(ctx context.Context, assetID asset.ID) (FetchRecord, error)
	LatestByDestination(ctx context.Context, destination string) (FetchRecord, error)
	ListFetches(ctx context.Context, limit int) ([]FetchRecord, error)
}

type FetchWriteRepository interface {
	// CreateFetch journals req as pending unless the asset already has an active fetch,
	// in which case that record is returned with created == false.
	CreateFetch(ctx context.Context, req asset.FetchRequest, owner string) (rec FetchRecord, created bool, err error)
	UpdateFetchStatus(ctx context.Context, handle asset.Handle, status FetchStatus, bytes int64, errMsg string) error
	// FailInterrupted marks active fetches owned by any other instance as failed and returns them.
	FailInterrupted(ctx context.Context, owner string) ([]FetchRecord, error)
}

type FetchRepository interface {
	FetchReadRepository
	FetchWriteRepository
}
