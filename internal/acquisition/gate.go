package acquisition

import (
	"context"
	"time"

	"github.com/italolelis/asset_bootstrap/internal/logctx"
)

// Gate is what the rest of the program consults before it touches the data directory.
type Gate interface {
	IsReady(ctx context.Context) bool
}

var _ Gate = (*Orchestrator)(nil)

// WaitReady blocks until gate reports ready, polling at interval, or ctx is done.
func WaitReady(ctx context.Context, gate Gate, interval time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !gate.IsReady(ctx) {
		logger.DebugContext(ctx, "waiting for required assets")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
