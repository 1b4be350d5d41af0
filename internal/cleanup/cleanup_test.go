package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/italolelis/asset_bootstrap/internal/asset"
	"github.com/italolelis/asset_bootstrap/internal/storage"
	"github.com/italolelis/asset_bootstrap/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteAbandonedPartials(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "fetches.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := sqlite.NewFetchRepository(db)
	old := time.Now().Add(-96 * time.Hour)

	journal := func(id asset.ID, name string, status storage.FetchStatus) {
		rec, _, err := repo.CreateFetch(ctx, asset.FetchRequest{Asset: id, URL: "http://x/" + name, Destination: filepath.Join(dir, name)}, "test")
		require.NoError(t, err)

		if status != storage.FetchPending {
			require.NoError(t, repo.UpdateFetchStatus(ctx, rec.Handle, status, 0, ""))
		}
	}

	partial := func(name string, mtime time.Time) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("partial"), 0o644))
		require.NoError(t, os.Chtimes(path, mtime, mtime))

		return path
	}

	journal(asset.CoreArchive, "spawn.mpq", storage.FetchFailed)
	journal(asset.Translation("pl"), "pl.mpq", storage.FetchRunning)
	journal(asset.Fonts, "fonts.mpq", storage.FetchFailed)

	failedOld := partial("spawn.mpq.part", old)
	activeOld := partial("pl.mpq.part", old)
	failedRecent := partial("fonts.mpq.part", time.Now())
	orphanOld := partial("ru.mpq.part", old)
	complete := partial("diabdat.mpq", old)

	n, err := DeleteAbandonedPartials(ctx, repo, dir, 72*time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NoFileExists(t, failedOld)
	assert.NoFileExists(t, orphanOld)
	assert.FileExists(t, activeOld)
	assert.FileExists(t, failedRecent)
	assert.FileExists(t, complete)
}

func TestDeleteAbandonedPartials_MissingDirectory(t *testing.T) {
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "fetches.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	n, err := DeleteAbandonedPartials(context.Background(), sqlite.NewFetchRepository(db), filepath.Join(t.TempDir(), "gone"), time.Hour, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
