package asset

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrUnknownAsset is returned when an AssetID has no descriptor in the catalog.
var ErrUnknownAsset = errors.New("unknown asset")

// ID names one required file. IDs are disjoint: no two map to the same file on disk.
type ID string

const (
	CoreArchive ID = "core-archive"
	Fonts       ID = "fonts"
)

// Translation returns the ID of the translation pack for the given language tag.
func Translation(lang string) ID {
	return ID("translation:" + lang)
}

// Set is an unordered collection of asset IDs.
type Set map[ID]struct{}

func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}

	return s
}

func (s Set) Add(id ID) {
	s[id] = struct{}{}
}

func (s Set) Len() int {
	return len(s)
}

func (s Set) Has(id ID) bool {
	_, ok := s[id]

	return ok
}

// Sorted returns the IDs in lexical order so callers get stable output.
func (s Set) Sorted() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func (s Set) String() string {
	ids := s.Sorted()
	parts := make([]string, len(ids))

	for i, id := range ids {
		parts[i] = string(id)
	}

	return "{" + strings.Join(parts, ", ") + "}"
}

// File is what the manifest is allowed to know about a file: its name and size.
type File struct {
	Name string
	Size int64
}

// StalenessFunc reports whether a present file must be replaced anyway.
type StalenessFunc func(f File) bool

// SupersededSizes flags a file as stale when its size matches a known older release.
// The list is a heuristic stand-in for real version negotiation and is not exhaustive.
func SupersededSizes(sizes ...int64) StalenessFunc {
	known := make(map[int64]struct{}, len(sizes))
	for _, s := range sizes {
		known[s] = struct{}{}
	}

	return func(f File) bool {
		_, ok := known[f.Size]

		return ok
	}
}

// Descriptor is the static description of one asset.
type Descriptor struct {
	ID    ID
	Label string

	// Files are the names that satisfy the asset, in lookup order (case variants included).
	Files []string
	// SharewareFiles satisfy the asset unless the full archive is required.
	SharewareFiles []string

	// FetchName is the file written by an acquisition. Empty URL means the asset
	// cannot be fetched and has to be imported by the user.
	FetchName string
	URL       string

	// Languages limits the asset to locales starting with one of these tags. Empty means always.
	Languages []string
	// KeepIfPresent makes an out-of-locale asset required anyway once it exists on disk.
	KeepIfPresent bool

	Stale StalenessFunc
}

// Fetchable reports whether the asset has a remote source.
func (d Descriptor) Fetchable() bool {
	return d.URL != "" && d.FetchName != ""
}

// Handle identifies one fetch in the fetch facility.
type Handle int64

// FetchRequest is emitted once per asset while no fetch for it is outstanding.
type FetchRequest struct {
	Asset       ID
	URL         string
	Destination string
	Label       string
	IssuedAt    time.Time
}

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// FetchOutcome is produced exactly once per fetch handle.
type FetchOutcome struct {
	Asset  ID
	Handle Handle
	Status Status
	Err    error
}

func (o FetchOutcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// Fetcher is the outbound side of acquisition: a background download facility that
// eventually reports a terminal status for every handle it returns.
type Fetcher interface {
	StartFetch(ctx context.Context, req FetchRequest) (Handle, error)
}
