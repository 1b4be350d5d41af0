package manifest

import (
	"os"
	"path/filepath"

	"github.com/italolelis/asset_bootstrap/internal/asset"
)

// Contents is a snapshot of the flat file listing of the authoritative directory.
// An unreadable directory yields empty, unreadable Contents: nothing is confirmed present.
type Contents struct {
	Readable bool
	files    map[string]int64
}

// NewContents builds a readable snapshot from explicit entries.
func NewContents(files ...asset.File) Contents {
	c := Contents{Readable: true, files: make(map[string]int64, len(files))}
	for _, f := range files {
		c.files[f.Name] = f.Size
	}

	return c
}

// Scan lists dir. Subdirectories are ignored, symlinks are followed, and entries that
// cannot be stat'ed are treated as absent.
func Scan(dir string) Contents {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Contents{}
	}

	c := Contents{Readable: true, files: make(map[string]int64, len(entries))}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		info, err := e.Info()
		if err == nil && info.Mode()&os.ModeSymlink != 0 {
			info, err = os.Stat(filepath.Join(dir, e.Name()))
		}

		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		c.files[e.Name()] = info.Size()
	}

	return c
}

// Lookup matches names exactly; callers list case variants explicitly.
func (c Contents) Lookup(name string) (asset.File, bool) {
	size, ok := c.files[name]
	if !ok {
		return asset.File{}, false
	}

	return asset.File{Name: name, Size: size}, true
}

func (c Contents) Len() int {
	return len(c.files)
}

// Equal reports whether both snapshots list the same files with the same sizes.
func (c Contents) Equal(o Contents) bool {
	if c.Readable != o.Readable || len(c.files) != len(o.files) {
		return false
	}

	for name, size := range c.files {
		if other, ok := o.files[name]; !ok || other != size {
			return false
		}
	}

	return true
}
