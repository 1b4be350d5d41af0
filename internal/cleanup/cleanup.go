package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/asset_bootstrap/internal/fetch"
	"github.com/italolelis/asset_bootstrap/internal/logctx"
	"github.com/italolelis/asset_bootstrap/internal/storage"
	"github.com/italolelis/asset_bootstrap/internal/telemetry"
)

// DeleteAbandonedPartials removes partial downloads in dir that no fetch will resume: their
// latest journal record failed, or there is none, and they were last written before retention.
// It returns the number of files removed.
func DeleteAbandonedPartials(ctx context.Context, repo storage.FetchReadRepository, dir string, retention time.Duration, now time.Time) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, err
	}

	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fetch.PartSuffix) {
			continue
		}

		part := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			continue // already gone
		}

		if now.Sub(info.ModTime()) <= retention {
			continue
		}

		dest := strings.TrimSuffix(part, fetch.PartSuffix)

		rec, err := repo.LatestByDestination(ctx, dest)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			logger.Error("failed to look up fetch for partial file", "path", part, "err", err)

			return removed, err
		case rec.Status != storage.FetchFailed:
			continue
		}

		if err := os.Remove(part); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to delete abandoned partial file", "path", part, "err", err)

			return removed, err
		}

		removed++

		logger.Info("deleted abandoned partial file", "path", part, "size", humanize.Bytes(uint64(info.Size())))
	}

	return removed, nil
}

// Run deletes abandoned partials every interval until ctx is done.
func Run(ctx context.Context, repo storage.FetchReadRepository, tel *telemetry.Telemetry, directory func(context.Context) (string, error), retention, interval time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return
		case <-ticker.C:
			dir, err := directory(ctx)
			if err != nil {
				logger.Error("failed to resolve directory for cleanup", "err", err)

				continue
			}

			n, err := DeleteAbandonedPartials(ctx, repo, dir, retention, time.Now())
			if err != nil {
				logger.Error("failed to delete abandoned partial files", "err", err)
				tel.RecordSystemError("cleanup", "delete_partials")
			}

			tel.RecordPartialsRemoved(n)
		}
	}
}
