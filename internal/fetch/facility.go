package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/asset_bootstrap/internal/asset"
	"github.com/italolelis/asset_bootstrap/internal/logctx"
	"github.com/italolelis/asset_bootstrap/internal/progress"
	"github.com/italolelis/asset_bootstrap/internal/storage"
	"github.com/italolelis/asset_bootstrap/internal/telemetry"
	"golang.org/x/sync/semaphore"
)

const (
	// PartSuffix marks a destination that is still being written.
	PartSuffix = ".part"

	dirPerm = 0o755
)

// Facility is the background download facility. Every handle it returns gets exactly one
// outcome on Outcomes, unless the facility is closed first.
type Facility struct {
	repo      storage.FetchRepository
	sources   Sources
	owner     string
	telemetry *telemetry.Telemetry
	sem       *semaphore.Weighted

	base     context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	outcomes chan asset.FetchOutcome
}

var _ asset.Fetcher = (*Facility)(nil)

type Option func(*Facility)

func WithSource(scheme string, src Source) Option {
	return func(f *Facility) {
		f.sources[scheme] = src
	}
}

func WithMaxParallel(n int) Option {
	return func(f *Facility) {
		if n < 1 {
			n = 1
		}

		f.sem = semaphore.NewWeighted(int64(n))
	}
}

func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(f *Facility) {
		f.telemetry = tel
	}
}

// WithOwner sets the instance id written on journal records.
func WithOwner(owner string) Option {
	return func(f *Facility) {
		f.owner = owner
	}
}

// NewFacility creates a facility whose transfers live until Close.
func NewFacility(repo storage.FetchRepository, opts ...Option) *Facility {
	base, cancel := context.WithCancel(context.Background())

	f := &Facility{
		repo:      repo,
		sources:   Sources{},
		owner:     storage.GenerateInstanceID(),
		telemetry: &telemetry.Telemetry{},
		sem:       semaphore.NewWeighted(3),
		base:      base,
		cancel:    cancel,
		outcomes:  make(chan asset.FetchOutcome, 64),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Outcomes delivers terminal statuses one at a time.
func (f *Facility) Outcomes() <-chan asset.FetchOutcome {
	return f.outcomes
}

// Recover fails records left active by a previous process. Their outcomes are not
// delivered: no orchestrator in this process holds their handles.
func (f *Facility) Recover(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	interrupted, err := f.repo.FailInterrupted(ctx, f.owner)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted fetches: %w", err)
	}

	for _, rec := range interrupted {
		logger.WarnContext(ctx, "marked interrupted fetch as failed",
			"handle", rec.Handle, "asset_id", rec.AssetID, "path", rec.Destination)
	}

	return nil
}

// StartFetch journals req and starts the transfer in the background. A request for an asset
// that already has an active fetch returns the existing handle and starts nothing.
func (f *Facility) StartFetch(ctx context.Context, req asset.FetchRequest) (asset.Handle, error) {
	logger := logctx.LoggerFromContext(ctx).With("asset_id", req.Asset)

	if f.base.Err() != nil {
		return 0, errors.New("fetch facility is closed")
	}

	if _, _, err := f.sources.lookup(req.URL); err != nil {
		return 0, err
	}

	rec, created, err := f.repo.CreateFetch(ctx, req, f.owner)
	if err != nil {
		return 0, fmt.Errorf("failed to journal fetch: %w", err)
	}

	if !created {
		logger.DebugContext(ctx, "fetch already active", "handle", rec.Handle)

		return rec.Handle, nil
	}

	// Transfers outlive the caller's context but keep its logger and episode.
	tctx := logctx.WithLogger(f.base, logger.With("handle", rec.Handle))
	if episode := logctx.EpisodeFromContext(ctx); episode != "" {
		tctx = logctx.WithEpisode(tctx, episode)
	}

	f.wg.Add(1)

	go func() {
		defer f.wg.Done()

		f.run(tctx, rec)
	}()

	logger.InfoContext(ctx, "fetch started", "handle", rec.Handle, "url", req.URL, "path", req.Destination)

	return rec.Handle, nil
}

func (f *Facility) run(ctx context.Context, rec storage.FetchRecord) {
	logger := logctx.LoggerFromContext(ctx)

	if err := f.sem.Acquire(ctx, 1); err != nil {
		f.finish(ctx, rec, 0, err)

		return
	}
	defer f.sem.Release(1)

	if err := f.repo.UpdateFetchStatus(ctx, rec.Handle, storage.FetchRunning, 0, ""); err != nil {
		logger.ErrorContext(ctx, "failed to mark fetch running", "err", err)
	}

	var written int64

	err := f.telemetry.InstrumentFetch(ctx, string(rec.AssetID), func(ctx context.Context) (int64, error) {
		var err error

		written, err = f.transfer(ctx, rec)

		return written, err
	})

	f.finish(ctx, rec, written, err)
}

func (f *Facility) finish(ctx context.Context, rec storage.FetchRecord, written int64, transferErr error) {
	logger := logctx.LoggerFromContext(ctx)

	outcome := asset.FetchOutcome{Asset: rec.AssetID, Handle: rec.Handle, Status: asset.StatusSucceeded}
	status := storage.FetchSucceeded
	msg := ""

	if transferErr != nil {
		outcome.Status = asset.StatusFailed
		outcome.Err = transferErr
		status = storage.FetchFailed
		msg = transferErr.Error()

		logger.ErrorContext(ctx, "fetch failed", "err", transferErr)
	} else {
		logger.InfoContext(ctx, "fetch finished", "path", rec.Destination, "size", humanize.Bytes(uint64(written)))
	}

	// Persisting must not depend on the facility still running.
	if err := f.repo.UpdateFetchStatus(context.WithoutCancel(ctx), rec.Handle, status, written, msg); err != nil {
		logger.ErrorContext(ctx, "failed to persist fetch status", "status", status, "err", err)
	}

	select {
	case f.outcomes <- outcome:
	case <-f.base.Done():
		logger.WarnContext(ctx, "facility closed before outcome was delivered", "status", status)
	}
}

// transfer streams the source into <dest>.part, resuming from its current size, and renames
// it onto dest once complete.
func (f *Facility) transfer(ctx context.Context, rec storage.FetchRecord) (int64, error) {
	src, scheme, err := f.sources.lookup(rec.URL)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(rec.Destination), dirPerm); err != nil {
		return 0, &asset.DirectoryError{Path: filepath.Dir(rec.Destination), Reason: "cannot create", Err: err}
	}

	part := rec.Destination + PartSuffix

	var offset int64
	if info, err := os.Stat(part); err == nil {
		offset = info.Size()
	}

	body, rng, err := NewInstrumentedSource(src, f.telemetry, scheme).Open(ctx, rec.URL, offset)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	if rng.Offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	out, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return 0, &asset.DirectoryError{Path: part, Reason: "cannot open partial file", Err: err}
	}

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "transferring",
		"path", part, "offset", humanize.Bytes(uint64(rng.Offset)), "resumed", rng.Offset > 0)

	reader := progress.NewReader(body, rng.Offset, rng.Total, progress.DefaultInterval, progress.LogFunc(ctx, rec.Destination))

	_, copyErr := io.Copy(out, reader)
	syncErr := out.Sync()
	closeErr := out.Close()

	if err := errors.Join(copyErr, syncErr, closeErr); err != nil {
		return reader.Written(), &asset.NetworkError{Operation: "read", APIMessage: err.Error(), Err: err}
	}

	written := reader.Written()
	if rng.Total >= 0 && written != rng.Total {
		return written, &asset.NetworkError{
			Operation:  "read",
			APIMessage: fmt.Sprintf("short read: got %d of %d bytes", written, rng.Total),
		}
	}

	if err := os.Rename(part, rec.Destination); err != nil {
		return written, &asset.DirectoryError{Path: rec.Destination, Reason: "cannot move partial file into place", Err: err}
	}

	return written, nil
}

// Close stops running transfers and waits for them. Partial files stay for the next run.
func (f *Facility) Close() {
	f.cancel()
	f.wg.Wait()
}

// Wait blocks until every started transfer has reported.
func (f *Facility) Wait() {
	f.wg.Wait()
}
