package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/asset_bootstrap/internal/asset"
	"github.com/italolelis/asset_bootstrap/internal/storage"
	"github.com/italolelis/asset_bootstrap/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *InstrumentedFetchRepository {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "fetches.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewInstrumentedFetchRepository(db, &telemetry.Telemetry{})
}

func request(id asset.ID) asset.FetchRequest {
	return asset.FetchRequest{
		Asset:       id,
		URL:         "https://example.com/" + string(id),
		Destination: "/data/" + string(id),
		Label:       "label",
		IssuedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestCreateFetch_OneActivePerAsset(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	first, created, err := repo.CreateFetch(ctx, request(asset.Fonts), "me")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, storage.FetchPending, first.Status)
	assert.Equal(t, "me", first.Owner)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), first.CreatedAt)

	again, created, err := repo.CreateFetch(ctx, request(asset.Fonts), "me")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Handle, again.Handle)

	other, created, err := repo.CreateFetch(ctx, request(asset.CoreArchive), "me")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.Handle, other.Handle)

	require.NoError(t, repo.UpdateFetchStatus(ctx, first.Handle, storage.FetchFailed, 0, "boom"))

	retry, created, err := repo.CreateFetch(ctx, request(asset.Fonts), "me")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Greater(t, retry.Handle, first.Handle)
}

func TestCreateFetch_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	const callers = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		handles = map[asset.Handle]int{}
		created int
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			rec, ok, err := repo.CreateFetch(ctx, request(asset.Translation("pl")), "me")
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			defer mu.Unlock()

			handles[rec.Handle]++
			if ok {
				created++
			}
		}()
	}

	wg.Wait()

	assert.Len(t, handles, 1)
	assert.Equal(t, 1, created)
}

func TestUpdateFetchStatus_TerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	rec, _, err := repo.CreateFetch(ctx, request(asset.Fonts), "me")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateFetchStatus(ctx, rec.Handle, storage.FetchRunning, 0, ""))
	require.NoError(t, repo.UpdateFetchStatus(ctx, rec.Handle, storage.FetchSucceeded, 1024, ""))

	err = repo.UpdateFetchStatus(ctx, rec.Handle, storage.FetchFailed, 0, "late")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := repo.GetFetch(ctx, rec.Handle)
	require.NoError(t, err)
	assert.Equal(t, storage.FetchSucceeded, got.Status)
	assert.Equal(t, int64(1024), got.Bytes)

	_, err = repo.ActiveFetch(ctx, asset.Fonts)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFailInterrupted(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	orphan, _, err := repo.CreateFetch(ctx, request(asset.Fonts), "previous-run")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateFetchStatus(ctx, orphan.Handle, storage.FetchRunning, 0, ""))

	mine, _, err := repo.CreateFetch(ctx, request(asset.CoreArchive), "me")
	require.NoError(t, err)

	interrupted, err := repo.FailInterrupted(ctx, "me")
	require.NoError(t, err)
	require.Len(t, interrupted, 1)
	assert.Equal(t, orphan.Handle, interrupted[0].Handle)
	assert.Equal(t, storage.FetchFailed, interrupted[0].Status)

	got, err := repo.GetFetch(ctx, orphan.Handle)
	require.NoError(t, err)
	assert.Equal(t, storage.FetchFailed, got.Status)
	assert.Equal(t, "interrupted", got.Error)

	active, err := repo.ActiveFetch(ctx, asset.CoreArchive)
	require.NoError(t, err)
	assert.Equal(t, mine.Handle, active.Handle)
}

func TestListAndLatestByDestination(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	first, _, err := repo.CreateFetch(ctx, request(asset.Fonts), "me")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateFetchStatus(ctx, first.Handle, storage.FetchFailed, 0, "x"))

	second, _, err := repo.CreateFetch(ctx, request(asset.Fonts), "me")
	require.NoError(t, err)

	records, err := repo.ListFetches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.Handle, records[0].Handle)

	limited, err := repo.ListFetches(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	latest, err := repo.LatestByDestination(ctx, "/data/fonts")
	require.NoError(t, err)
	assert.Equal(t, second.Handle, latest.Handle)

	_, err = repo.LatestByDestination(ctx, "/data/none")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = repo.GetFetch(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
