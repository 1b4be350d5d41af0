package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_SortedAndString(t *testing.T) {
	s := NewSet(Translation("pl"), CoreArchive, Fonts)

	assert.Equal(t, []ID{CoreArchive, Fonts, Translation("pl")}, s.Sorted())
	assert.Equal(t, "{core-archive, fonts, translation:pl}", s.String())
	assert.True(t, s.Has(Fonts))
	assert.False(t, s.Has(Translation("ru")))
}

func TestSupersededSizes(t *testing.T) {
	stale := SupersededSizes(100, 200)

	assert.True(t, stale(File{Name: "fonts.mpq", Size: 100}))
	assert.True(t, stale(File{Name: "fonts.mpq", Size: 200}))
	assert.False(t, stale(File{Name: "fonts.mpq", Size: 300}))
}

func TestDescriptor_Fetchable(t *testing.T) {
	assert.True(t, Descriptor{FetchName: "spawn.mpq", URL: "https://example.com/spawn.mpq"}.Fetchable())
	assert.False(t, Descriptor{FetchName: "diabdat.mpq"}.Fetchable())
}
