package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/asset_bootstrap/internal/logctx"
	"github.com/italolelis/asset_bootstrap/internal/progress"
	"golang.org/x/sys/unix"
)

// Outcome is the result of moving one file into the authoritative directory.
type Outcome string

const (
	Renamed           Outcome = "renamed"
	Copied            Outcome = "copied"
	SkippedExists     Outcome = "skipped-exists"
	SkippedUnwritable Outcome = "skipped-unwritable"
	SkippedMissing    Outcome = "skipped-missing"
	Failed            Outcome = "failed"
)

// tmpPattern names copies in progress: hidden, unique per copy, never a user's file name.
const tmpPattern = ".%s.*.tmp"

// Record describes one migration. It is never persisted.
type Record struct {
	Source        string
	Destination   string
	Outcome       Outcome
	Bytes         int64
	SourceRemoved bool
	Err           error
}

func (r Record) String() string {
	s := fmt.Sprintf("%s -> %s: %s", r.Source, r.Destination, r.Outcome)
	if r.Bytes > 0 {
		s += " (" + humanize.Bytes(uint64(r.Bytes)) + ")"
	}

	if r.Err != nil {
		s += ": " + r.Err.Error()
	}

	return s
}

// Migrator moves files into dir. Existing destinations always win, sources are only
// deleted when a complete copy of them is in place, and no call ever returns an error.
type Migrator struct {
	dir string

	move     func(src, dst string) error
	copyData func(dst io.Writer, src io.Reader) (int64, error)
	writable func(path string) bool
	remove   func(path string) error
}

func New(dir string) *Migrator {
	return &Migrator{
		dir:      dir,
		move:     os.Rename,
		copyData: io.Copy,
		writable: writable,
		remove:   os.Remove,
	}
}

// writable reports whether path could be deleted: the file and its parent must both accept writes.
func writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil && unix.Access(filepath.Dir(path), unix.W_OK) == nil
}

// Migrate moves src into the authoritative directory.
func (m *Migrator) Migrate(ctx context.Context, src string) Record {
	rec := Record{Source: src, Destination: filepath.Join(m.dir, filepath.Base(src))}

	info, ok := m.readableSource(&rec)
	if !ok {
		return m.log(ctx, rec)
	}

	if dstInfo, err := os.Stat(rec.Destination); err == nil {
		if os.SameFile(info, dstInfo) {
			rec.Outcome = SkippedExists

			return m.log(ctx, rec)
		}

		if !m.writable(src) {
			rec.Outcome = SkippedUnwritable

			return m.log(ctx, rec)
		}

		rec.Outcome = SkippedExists
		m.removeSource(&rec)

		return m.log(ctx, rec)
	}

	moveErr := m.move(src, rec.Destination)
	if moveErr == nil {
		rec.Outcome = Renamed
		rec.Bytes = info.Size()
		rec.SourceRemoved = true

		return m.log(ctx, rec)
	}

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "atomic move failed, falling back to copy",
		"path", src, "err", moveErr)

	n, err := m.copyAtomic(ctx, src, rec.Destination, info.Size())
	if err != nil {
		rec.Outcome = Failed
		rec.Err = err

		return m.log(ctx, rec)
	}

	rec.Outcome = Copied
	rec.Bytes = n

	if m.writable(src) {
		m.removeSource(&rec)
	}

	return m.log(ctx, rec)
}

// MigrateAll migrates every regular file directly inside legacyDir.
func (m *Migrator) MigrateAll(ctx context.Context, legacyDir string) []Record {
	logger := logctx.LoggerFromContext(ctx)

	if legacyDir == "" {
		return nil
	}

	if same, _ := sameDir(legacyDir, m.dir); same {
		logger.DebugContext(ctx, "legacy directory is the authoritative directory, nothing to migrate", "path", legacyDir)

		return nil
	}

	entries, err := os.ReadDir(legacyDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnContext(ctx, "cannot list legacy directory", "path", legacyDir, "err", err)
		}

		return nil
	}

	records := make([]Record, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		records = append(records, m.Migrate(ctx, filepath.Join(legacyDir, e.Name())))
	}

	return records
}

// Import copies a user-provided file into the authoritative directory. The source is
// never removed. Without overwrite an existing destination is kept.
func (m *Migrator) Import(ctx context.Context, src string, overwrite bool) Record {
	rec := Record{Source: src, Destination: filepath.Join(m.dir, filepath.Base(src))}

	info, ok := m.readableSource(&rec)
	if !ok {
		return m.log(ctx, rec)
	}

	if dstInfo, err := os.Stat(rec.Destination); err == nil {
		if !overwrite || os.SameFile(info, dstInfo) {
			rec.Outcome = SkippedExists

			return m.log(ctx, rec)
		}
	}

	n, err := m.copyAtomic(ctx, src, rec.Destination, info.Size())
	if err != nil {
		rec.Outcome = Failed
		rec.Err = err

		return m.log(ctx, rec)
	}

	rec.Outcome = Copied
	rec.Bytes = n

	return m.log(ctx, rec)
}

func (m *Migrator) readableSource(rec *Record) (os.FileInfo, bool) {
	info, err := os.Stat(rec.Source)
	if err != nil {
		rec.Outcome = SkippedMissing
		if !errors.Is(err, os.ErrNotExist) {
			rec.Err = err
		}

		return nil, false
	}

	if !info.Mode().IsRegular() {
		rec.Outcome = SkippedMissing
		rec.Err = fmt.Errorf("%s is not a regular file", rec.Source)

		return nil, false
	}

	if err := unix.Access(rec.Source, unix.R_OK); err != nil {
		rec.Outcome = SkippedMissing
		rec.Err = fmt.Errorf("source is not readable: %w", err)

		return nil, false
	}

	return info, true
}

func (m *Migrator) removeSource(rec *Record) {
	if err := m.remove(rec.Source); err != nil && !errors.Is(err, os.ErrNotExist) {
		rec.Err = fmt.Errorf("failed to remove source: %w", err)

		return
	}

	rec.SourceRemoved = true
}

// copyAtomic streams src into a fresh temporary file next to dst, syncs it and renames it
// over dst. On any failure the temporary file is removed and dst is left as it was.
func (m *Migrator) copyAtomic(ctx context.Context, src, dst string, size int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), fmt.Sprintf(tmpPattern, filepath.Base(dst)))
	if err != nil {
		return 0, err
	}

	tmp := out.Name()

	if err := out.Chmod(0o644); err != nil {
		out.Close()
		_ = os.Remove(tmp)

		return 0, err
	}

	reader := progress.NewReader(in, 0, size, progress.DefaultInterval, progress.LogFunc(ctx, dst))

	n, copyErr := m.copyData(out, reader)
	syncErr := out.Sync()
	closeErr := out.Close()

	if err := errors.Join(copyErr, syncErr, closeErr); err != nil {
		_ = os.Remove(tmp)

		return 0, fmt.Errorf("copy %s: %w", src, err)
	}

	if n != size {
		_ = os.Remove(tmp)

		return 0, fmt.Errorf("copy %s: short copy, wrote %d of %d bytes", src, n, size)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)

		return 0, fmt.Errorf("rename tmp->final: %w", err)
	}

	return n, nil
}

func (m *Migrator) log(ctx context.Context, rec Record) Record {
	logger := logctx.LoggerFromContext(ctx).With(
		"path", rec.Source,
		"destination", rec.Destination,
		"outcome", string(rec.Outcome),
		"source_removed", rec.SourceRemoved,
	)

	switch {
	case rec.Outcome == Failed:
		logger.ErrorContext(ctx, "migration failed", "err", rec.Err)
	case rec.Err != nil:
		logger.WarnContext(ctx, "migration finished with errors", "err", rec.Err)
	case rec.Outcome == SkippedMissing:
		logger.DebugContext(ctx, "nothing to migrate")
	default:
		logger.InfoContext(ctx, "file migrated", "size", humanize.Bytes(uint64(rec.Bytes)))
	}

	return rec
}

func sameDir(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}

	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}

	return os.SameFile(ai, bi), nil
}
