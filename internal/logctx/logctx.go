package logctx

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	episodeKey contextKey = "episode"
)

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// WithEpisode tags the context with the id of the acquisition episode it belongs to.
func WithEpisode(ctx context.Context, episodeID string) context.Context {
	return context.WithValue(ctx, episodeKey, episodeID)
}

// EpisodeFromContext returns the acquisition episode id, or "" outside an episode.
func EpisodeFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(episodeKey).(string); ok {
		return id
	}

	return ""
}
