package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/italolelis/asset_bootstrap/internal/logctx"
	"golang.org/x/time/rate"
)

// ignoredSuffixes are files written by this program while a transfer or copy is in progress.
var ignoredSuffixes = []string{".part", ".tmp", ".write_check"}

// TriggerFunc is called after one or more relevant changes in the watched directory.
type TriggerFunc func(ctx context.Context) error

// Watcher coalesces directory changes into rate limited triggers.
type Watcher struct {
	dir     string
	trigger TriggerFunc
	limiter *rate.Limiter
	pending chan struct{}
}

// New returns a watcher that fires trigger at most once per interval.
func New(dir string, interval time.Duration, trigger TriggerFunc) *Watcher {
	return &Watcher{
		dir:     dir,
		trigger: trigger,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		pending: make(chan struct{}, 1),
	}
}

// Run watches until ctx is done. Changes that arrive while a trigger is waiting on the rate
// limit collapse into that trigger.
func (w *Watcher) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx).With("path", w.dir)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	go w.fire(ctx)

	logger.Info("watching storage directory")

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher shutting down.")

			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if !relevant(event) {
				continue
			}

			logger.Debug("storage directory changed", "file", filepath.Base(event.Name), "op", event.Op.String())

			select {
			case w.pending <- struct{}{}:
			default:
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}

			logger.Warn("watcher error", "err", err)
		}
	}
}

func (w *Watcher) fire(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.pending:
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return
		}

		if err := w.trigger(ctx); err != nil {
			logger.Error("watch trigger failed", "err", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
		return false
	}

	for _, suffix := range ignoredSuffixes {
		if strings.HasSuffix(event.Name, suffix) {
			return false
		}
	}

	return true
}
