package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevant(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{name: "new archive", event: fsnotify.Event{Name: "/d/diabdat.mpq", Op: fsnotify.Create}, want: true},
		{name: "removed archive", event: fsnotify.Event{Name: "/d/pl.mpq", Op: fsnotify.Remove}, want: true},
		{name: "renamed onto destination", event: fsnotify.Event{Name: "/d/spawn.mpq", Op: fsnotify.Rename}, want: true},
		{name: "partial download", event: fsnotify.Event{Name: "/d/spawn.mpq.part", Op: fsnotify.Write}, want: false},
		{name: "copy in progress", event: fsnotify.Event{Name: "/d/fonts.mpq.tmp", Op: fsnotify.Create}, want: false},
		{name: "writability check", event: fsnotify.Event{Name: "/d/.write_check", Op: fsnotify.Create}, want: false},
		{name: "chmod only", event: fsnotify.Event{Name: "/d/diabdat.mpq", Op: fsnotify.Chmod}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.event))
		})
	}
}

func TestWatcher_TriggersOnChange(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32

	triggered := make(chan struct{}, 8)
	w := New(dir, 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		triggered <- struct{}{}

		return nil
	})

	done := make(chan error, 1)

	go func() { done <- w.Run(ctx) }()

	// The watch is registered asynchronously; keep writing until the first trigger lands.
	deadline := time.After(5 * time.Second)

	for i := 0; ; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "diabdat.mpq"), []byte{byte(i)}, 0o644))

		select {
		case <-triggered:
			cancel()
			require.NoError(t, <-done)
			assert.GreaterOrEqual(t, calls.Load(), int32(1))

			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for watch trigger")
		}
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "gone"), time.Second, func(context.Context) error { return nil })

	assert.Error(t, w.Run(context.Background()))
}
