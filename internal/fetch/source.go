package fetch

import (
	"context"
	"io"
	"net/url"

	"github.com/italolelis/asset_bootstrap/internal/asset"
)

// Source opens a remote object for reading.
type Source interface {
	// Open starts reading rawURL at offset. The returned Range reports the offset the
	// source actually honoured (0 when it ignored the request) and the full object size,
	// or -1 when unknown.
	Open(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, Range, error)
}

type Range struct {
	Offset int64
	Total  int64
}

// Sources routes URLs to a Source by scheme.
type Sources map[string]Source

func (s Sources) lookup(rawURL string) (Source, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", &asset.SourceError{URL: rawURL, Reason: err.Error()}
	}

	src, ok := s[u.Scheme]
	if !ok {
		return nil, u.Scheme, &asset.SourceError{URL: rawURL, Reason: "no source for scheme " + u.Scheme}
	}

	return src, u.Scheme, nil
}
