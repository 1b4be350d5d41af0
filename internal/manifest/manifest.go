package manifest

import (
	"fmt"
	"slices"

	"github.com/italolelis/asset_bootstrap/internal/asset"
)

// Manifest decides, per locale and directory snapshot, which assets are required but missing.
// It only ever reads the snapshot it is given, so equal inputs always give equal answers.
type Manifest struct {
	descriptors []asset.Descriptor
	byID        map[asset.ID]int

	requireFullArchive bool
}

type Option func(*Manifest)

// RequireFullArchive stops shareware files from satisfying an asset.
func RequireFullArchive(v bool) Option {
	return func(m *Manifest) {
		m.requireFullArchive = v
	}
}

// New validates that IDs are unique, that no file name belongs to two assets and that
// each fetch destination is one of the asset's own file names.
func New(descriptors []asset.Descriptor, opts ...Option) (*Manifest, error) {
	m := &Manifest{
		descriptors: slices.Clone(descriptors),
		byID:        make(map[asset.ID]int, len(descriptors)),
	}

	owners := make(map[string]asset.ID)

	for i, d := range m.descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("descriptor %d has no id", i)
		}

		if _, dup := m.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate asset id %q", d.ID)
		}

		m.byID[d.ID] = i

		if d.FetchName != "" && !slices.Contains(d.Files, d.FetchName) && !slices.Contains(d.SharewareFiles, d.FetchName) {
			return nil, fmt.Errorf("asset %q fetches %q which does not satisfy it", d.ID, d.FetchName)
		}

		names := append(append(slices.Clone(d.Files), d.SharewareFiles...), d.FetchName)
		for _, name := range names {
			if name == "" {
				continue
			}

			if owner, taken := owners[name]; taken && owner != d.ID {
				return nil, fmt.Errorf("file %q claimed by both %q and %q", name, owner, d.ID)
			}

			owners[name] = d.ID
		}
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Descriptor returns the static description of id.
func (m *Manifest) Descriptor(id asset.ID) (asset.Descriptor, error) {
	i, ok := m.byID[id]
	if !ok {
		return asset.Descriptor{}, fmt.Errorf("%w: %s", asset.ErrUnknownAsset, id)
	}

	return m.descriptors[i], nil
}

func (m *Manifest) Descriptors() []asset.Descriptor {
	return slices.Clone(m.descriptors)
}

// RequiredMissing returns every asset that the locale needs and the snapshot does not satisfy.
// inFlight lists assets with an outstanding fetch; a file sitting at such an asset's fetch
// destination is a partial download and does not count.
func (m *Manifest) RequiredMissing(locale Locale, contents Contents, inFlight asset.Set) asset.Set {
	missing := asset.NewSet()

	for _, d := range m.descriptors {
		if !m.required(d, locale, contents) {
			continue
		}

		if !m.satisfied(d, contents, inFlight.Has(d.ID)) {
			missing.Add(d.ID)
		}
	}

	return missing
}

// Acquirable reports whether fetching id can satisfy it under the current policy.
func (m *Manifest) Acquirable(id asset.ID) bool {
	d, err := m.Descriptor(id)
	if err != nil || !d.Fetchable() {
		return false
	}

	return slices.Contains(m.satisfyingNames(d), d.FetchName)
}

func (m *Manifest) required(d asset.Descriptor, locale Locale, contents Contents) bool {
	if len(d.Languages) == 0 {
		return true
	}

	for _, lang := range d.Languages {
		if locale.HasPrefix(lang) {
			return true
		}
	}

	if d.KeepIfPresent {
		for _, name := range m.satisfyingNames(d) {
			if _, ok := contents.Lookup(name); ok {
				return true
			}
		}
	}

	return false
}

func (m *Manifest) satisfied(d asset.Descriptor, contents Contents, fetching bool) bool {
	for _, name := range m.satisfyingNames(d) {
		f, ok := contents.Lookup(name)
		if !ok {
			continue
		}

		if fetching && name == d.FetchName {
			continue
		}

		if d.Stale != nil && d.Stale(f) {
			continue
		}

		return true
	}

	return false
}

func (m *Manifest) satisfyingNames(d asset.Descriptor) []string {
	names := slices.Clone(d.Files)
	if !m.requireFullArchive {
		names = append(names, d.SharewareFiles...)
	}

	return names
}
