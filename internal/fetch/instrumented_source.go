package fetch

import (
	"context"
	"io"

	"github.com/italolelis/asset_bootstrap/internal/telemetry"
)

// InstrumentedSource wraps a Source with telemetry.
type InstrumentedSource struct {
	source    Source
	telemetry *telemetry.Telemetry
	scheme    string
}

func NewInstrumentedSource(source Source, tel *telemetry.Telemetry, scheme string) *InstrumentedSource {
	return &InstrumentedSource{
		source:    source,
		telemetry: tel,
		scheme:    scheme,
	}
}

func (s *InstrumentedSource) Open(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, Range, error) {
	var (
		body io.ReadCloser
		rng  Range
	)

	err := s.telemetry.InstrumentSourceOperation(ctx, s.scheme, "open", func(ctx context.Context) error {
		var err error

		body, rng, err = s.source.Open(ctx, rawURL, offset)

		return err
	})

	return body, rng, err
}
