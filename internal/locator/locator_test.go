package locator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()

	dir := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	return dir
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, root string) []string
		wantSuffix string
		wantReason string
	}{
		{
			name: "marker beats earlier non-empty candidate",
			setup: func(t *testing.T, root string) []string {
				a := mkdir(t, root, "a")
				b := mkdir(t, root, "b")
				touch(t, filepath.Join(a, "spawn.mpq"))
				touch(t, filepath.Join(b, "diablo.ini"))

				return []string{a, b}
			},
			wantSuffix: "b",
			wantReason: "marker",
		},
		{
			name: "first non-empty candidate without a marker",
			setup: func(t *testing.T, root string) []string {
				a := mkdir(t, root, "a")
				b := mkdir(t, root, "b")
				c := mkdir(t, root, "c")
				touch(t, filepath.Join(b, "pl.mpq"))
				touch(t, filepath.Join(c, "ru.mpq"))

				return []string{a, b, c}
			},
			wantSuffix: "b",
			wantReason: "non_empty",
		},
		{
			name: "default when every candidate is empty or missing",
			setup: func(t *testing.T, root string) []string {
				return []string{mkdir(t, root, "a"), filepath.Join(root, "missing")}
			},
			wantSuffix: "default",
			wantReason: "default",
		},
		{
			name: "marker directory is not mistaken for a marker file",
			setup: func(t *testing.T, root string) []string {
				a := mkdir(t, root, "a")
				mkdir(t, a, "diablo.ini")

				return []string{a}
			},
			wantSuffix: "a",
			wantReason: "non_empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			candidates := tt.setup(t, root)
			defaultDir := filepath.Join(root, "default")

			d, err := Resolve(candidates, MarkerProvider("diablo.ini"), NonEmptyProvider(), DefaultProvider(defaultDir))
			require.NoError(t, err)

			assert.Equal(t, filepath.Join(root, tt.wantSuffix), d.Path)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.True(t, d.Exists)
			assert.DirExists(t, d.Path)
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	root := t.TempDir()
	a := mkdir(t, root, "a")
	b := mkdir(t, root, "b")
	touch(t, filepath.Join(a, "one"))
	touch(t, filepath.Join(b, "two"))

	providers := []Provider{MarkerProvider("diablo.ini"), NonEmptyProvider(), DefaultProvider(filepath.Join(root, "d"))}

	first, err := Resolve([]string{a, b}, providers...)
	require.NoError(t, err)

	second, err := Resolve([]string{a, b}, providers...)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolve_SkipsUnlistableCandidates(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "not-a-dir")
	touch(t, file)

	d, err := Resolve([]string{"", file, filepath.Join(root, "absent")}, MarkerProvider("diablo.ini"), NonEmptyProvider())
	assert.Error(t, err)
	assert.Empty(t, d.Path)
}

func TestResolve_DefaultCannotBeCreated(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	touch(t, blocker)

	_, err := Resolve(nil, DefaultProvider(filepath.Join(blocker, "sub")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable storage directory")
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()

	d := Inspect(dir)
	assert.True(t, d.Exists)
	assert.True(t, d.Writable)
	assert.NoFileExists(t, filepath.Join(dir, checkFileName))

	missing := Inspect(filepath.Join(dir, "missing"))
	assert.False(t, missing.Exists)
	assert.False(t, missing.Writable)
}

func TestLocator_CachesAndFailsClosed(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := mkdir(t, root, "a")
	touch(t, filepath.Join(a, "diablo.ini"))

	l := New([]string{a}, filepath.Join(root, "default"), "diablo.ini")

	d, err := l.Directory(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, d.Path)

	// A new marker elsewhere does not relocate a resolved directory.
	b := mkdir(t, root, "b")
	touch(t, filepath.Join(b, "diablo.ini"))
	l.candidates = []string{b, a}

	d, err = l.Directory(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, d.Path)
	assert.Equal(t, "marker", d.Reason)

	require.NoError(t, os.RemoveAll(a))

	_, err = l.Directory(ctx)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	l.Reset()

	d, err = l.Directory(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, d.Path)
}

func TestLocator_CachedLookupDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := mkdir(t, root, "a")
	touch(t, filepath.Join(a, "diablo.ini"))

	l := New([]string{a}, filepath.Join(root, "default"), "diablo.ini")

	first, err := l.Directory(ctx)
	require.NoError(t, err)
	require.True(t, first.Writable)

	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(a, past, past))

	for range 3 {
		d, err := l.Directory(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, d)
	}

	info, err := os.Stat(a)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past), "directory was modified: %s", info.ModTime())
	assert.NoFileExists(t, filepath.Join(a, checkFileName))
}

func TestLocator_PathReresolvesGoneDirectory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := mkdir(t, root, "a")
	b := mkdir(t, root, "b")
	touch(t, filepath.Join(a, "diablo.ini"))
	touch(t, filepath.Join(b, "spawn.mpq"))

	l := New([]string{a, b}, filepath.Join(root, "default"), "diablo.ini")

	path, err := l.Path(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, path)

	require.NoError(t, os.RemoveAll(a))

	path, err = l.Path(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, path)

	d, err := l.Directory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "non_empty", d.Reason)
}
