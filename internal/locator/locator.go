package locator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/italolelis/asset_bootstrap/internal/asset"
	"github.com/italolelis/asset_bootstrap/internal/logctx"
	"golang.org/x/sys/unix"
)

// ErrStorageUnavailable is returned when the resolved directory disappeared after resolution.
// Path resolves again on its own; Directory callers must Reset first.
var ErrStorageUnavailable = errors.New("storage directory unavailable")

const checkFileName = ".write_check"

// Directory is the authoritative storage location.
type Directory struct {
	Path     string
	Exists   bool
	Writable bool
	// Reason names the provider that picked the directory.
	Reason string
}

// Provider picks a directory from the candidates, or reports that it has no opinion.
type Provider struct {
	Name   string
	Choose func(candidates []string) (string, bool)
}

// MarkerProvider picks the first listable candidate that contains marker.
func MarkerProvider(marker string) Provider {
	return Provider{
		Name: "marker",
		Choose: func(candidates []string) (string, bool) {
			for _, dir := range candidates {
				entries, ok := list(dir)
				if !ok {
					continue
				}

				for _, e := range entries {
					if !e.IsDir() && e.Name() == marker {
						return dir, true
					}
				}
			}

			return "", false
		},
	}
}

// NonEmptyProvider picks the first listable candidate with at least one entry.
func NonEmptyProvider() Provider {
	return Provider{
		Name: "non_empty",
		Choose: func(candidates []string) (string, bool) {
			for _, dir := range candidates {
				if entries, ok := list(dir); ok && len(entries) > 0 {
					return dir, true
				}
			}

			return "", false
		},
	}
}

// DefaultProvider always picks dir, creating it when needed.
func DefaultProvider(dir string) Provider {
	return Provider{
		Name: "default",
		Choose: func(_ []string) (string, bool) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", false
			}

			return dir, true
		},
	}
}

func list(dir string) ([]os.DirEntry, bool) {
	if dir == "" {
		return nil, false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}

	return entries, true
}

// Resolve asks each provider in order and returns the first answer. It never fails on an
// unreadable candidate; it fails only when no provider answers.
func Resolve(candidates []string, providers ...Provider) (Directory, error) {
	for _, p := range providers {
		dir, ok := p.Choose(candidates)
		if !ok {
			continue
		}

		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}

		d := Inspect(abs)
		d.Reason = p.Name

		return d, nil
	}

	return Directory{}, &asset.DirectoryError{Path: fmt.Sprint(candidates), Reason: "no usable storage directory"}
}

// Inspect reports whether path exists as a directory and whether files can be created in it.
func Inspect(path string) Directory {
	d := Directory{Path: path}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return d
	}

	d.Exists = true

	if err := unix.Access(path, unix.W_OK); err != nil {
		return d
	}

	check := filepath.Join(path, checkFileName)
	if err := os.WriteFile(check, nil, 0o644); err != nil {
		return d
	}

	_ = os.Remove(check)
	d.Writable = true

	return d
}

// Locator resolves the authoritative directory once and caches it for the process.
type Locator struct {
	candidates []string
	providers  []Provider

	mu       sync.Mutex
	resolved *Directory
}

// New builds a locator with the marker, non-empty and default providers, in that order.
func New(candidates []string, defaultDir, marker string) *Locator {
	return NewWithProviders(candidates, MarkerProvider(marker), NonEmptyProvider(), DefaultProvider(defaultDir))
}

func NewWithProviders(candidates []string, providers ...Provider) *Locator {
	return &Locator{
		candidates: candidates,
		providers:  providers,
	}
}

// Directory returns the cached directory, resolving and write-checking it on first use. Once
// the cached directory is gone it fails closed with ErrStorageUnavailable until Reset is called.
func (l *Locator) Directory(ctx context.Context) (Directory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	logger := logctx.LoggerFromContext(ctx)

	// The cached path is only stat'ed: readiness checks go through here and must not write.
	if l.resolved != nil {
		if info, err := os.Stat(l.resolved.Path); err != nil || !info.IsDir() {
			logger.Warn("authoritative directory is gone", "path", l.resolved.Path)

			return Directory{}, fmt.Errorf("%w: %s", ErrStorageUnavailable, l.resolved.Path)
		}

		return *l.resolved, nil
	}

	d, err := Resolve(l.candidates, l.providers...)
	if err != nil {
		return Directory{}, err
	}

	logger.Info("resolved authoritative directory", "path", d.Path, "reason", d.Reason, "writable", d.Writable)

	l.resolved = &d

	return d, nil
}

// Path returns the authoritative directory path. When the cached directory is gone it
// resolves again once, so a directory the host removed or remounted elsewhere is picked up.
func (l *Locator) Path(ctx context.Context) (string, error) {
	d, err := l.Directory(ctx)
	if errors.Is(err, ErrStorageUnavailable) {
		logctx.LoggerFromContext(ctx).Warn("re-resolving authoritative directory", "err", err)

		l.Reset()

		d, err = l.Directory(ctx)
	}

	if err != nil {
		return "", err
	}

	return d.Path, nil
}

// Reset drops the cached directory so the next call resolves again.
func (l *Locator) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resolved = nil
}
