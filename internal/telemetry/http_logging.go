package telemetry

import (
	"net/http"
	"time"

	"github.com/italolelis/asset_bootstrap/internal/logctx"
)

// HTTPLogging logs one line per request, at ERROR for 5xx, WARN for 4xx and INFO otherwise.
// The request logger carries the request id so handler logs can be correlated.
func HTTPLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestID(ctx)

		logger := logctx.LoggerFromContext(ctx)
		if requestID != "" {
			logger = logger.With("request_id", requestID)
			ctx = logctx.WithLogger(ctx, logger)
		}

		start := time.Now()
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		status := wrapped.status
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case status >= 500:
			logger.ErrorContext(ctx, "http request completed", attrs...)
		case status >= 400:
			logger.WarnContext(ctx, "http request completed", attrs...)
		default:
			logger.InfoContext(ctx, "http request completed", attrs...)
		}
	})
}
