package progress

import (
	"context"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/asset_bootstrap/internal/logctx"
)

// DefaultInterval is the number of bytes between two progress reports.
const DefaultInterval = 16 * 1024 * 1024

// Reader wraps an io.Reader and reports progress via a callback.
type Reader struct {
	Reader     io.Reader
	Total      int64
	OnProgress func(written int64, total int64)

	totalRead      int64 // cumulative, including the starting offset
	lastReport     int64 // bytes since last report
	reportInterval int64
}

// NewReader starts counting at offset, so a resumed transfer reports absolute positions.
func NewReader(r io.Reader, offset, total, interval int64, cb func(written int64, total int64)) *Reader {
	return &Reader{
		Reader:         r,
		Total:          total,
		OnProgress:     cb,
		totalRead:      offset,
		reportInterval: interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.lastReport += int64(n)

		if pr.lastReport >= pr.reportInterval {
			pr.report()
		}
	}

	if err == io.EOF && pr.lastReport > 0 {
		pr.report()
	}

	return n, err
}

// Written returns the number of bytes seen so far, offset included.
func (pr *Reader) Written() int64 {
	return pr.totalRead
}

func (pr *Reader) report() {
	if pr.OnProgress != nil {
		pr.OnProgress(pr.totalRead, pr.Total)
	}

	pr.lastReport = 0
}

// LogFunc returns a callback that writes debug progress lines for path.
func LogFunc(ctx context.Context, path string) func(written int64, total int64) {
	logger := logctx.LoggerFromContext(ctx)

	return func(written int64, total int64) {
		if total > 0 {
			logger.DebugContext(ctx, "transfer progress",
				"path", path,
				"written", humanize.Bytes(uint64(written)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(written)*100/float64(total), 2))

			return
		}

		logger.DebugContext(ctx, "transfer progress", "path", path, "written", humanize.Bytes(uint64(written)))
	}
}
