package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log output: %v", err)
	}

	return entry
}

func validSpanContext(t *testing.T) trace.SpanContext {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatal(err)
	}

	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatal(err)
	}

	return trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
}

// TestTraceHandler_NoSpanContext verifies that plain contexts add no correlation fields.
func TestTraceHandler_NoSpanContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{})))

	logger.InfoContext(context.Background(), "test message", "key", "value")

	entry := decodeLine(t, &buf)

	for _, field := range []string{"trace_id", "span_id", "episode_id"} {
		if _, exists := entry[field]; exists {
			t.Errorf("%s should not be present, got: %v", field, entry[field])
		}
	}

	if entry["msg"] != "test message" {
		t.Errorf("expected msg='test message', got: %v", entry["msg"])
	}

	if entry["key"] != "value" {
		t.Errorf("expected key='value', got: %v", entry["key"])
	}
}

// TestTraceHandler_WithValidSpan verifies that trace and span ids are copied from the context.
func TestTraceHandler_WithValidSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{})))

	ctx := trace.ContextWithSpanContext(context.Background(), validSpanContext(t))
	logger.InfoContext(ctx, "test message")

	entry := decodeLine(t, &buf)

	if entry["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("unexpected trace_id: %v", entry["trace_id"])
	}

	if entry["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("unexpected span_id: %v", entry["span_id"])
	}
}

func TestTraceHandler_WithEpisode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{})))

	ctx := WithEpisode(context.Background(), "episode-1")
	logger.InfoContext(ctx, "fetch requested")

	entry := decodeLine(t, &buf)
	if entry["episode_id"] != "episode-1" {
		t.Errorf("expected episode_id='episode-1', got: %v", entry["episode_id"])
	}
}

// TestTraceHandler_Enabled verifies that Enabled delegates to inner handler.
func TestTraceHandler_Enabled(t *testing.T) {
	h := NewTraceHandler(slog.NewJSONHandler(nil, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	if h.Enabled(ctx, slog.LevelInfo) {
		t.Errorf("expected Info level to be disabled when handler level is Warn")
	}

	if !h.Enabled(ctx, slog.LevelError) {
		t.Errorf("expected Error level to be enabled")
	}
}

func TestTraceHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewTraceHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("component", "migrate")})
	if _, ok := withAttrs.(*TraceHandler); !ok {
		t.Fatalf("WithAttrs should return *TraceHandler, got: %T", withAttrs)
	}

	grouped := withAttrs.WithGroup("asset")
	if _, ok := grouped.(*TraceHandler); !ok {
		t.Fatalf("WithGroup should return *TraceHandler, got: %T", grouped)
	}

	slog.New(grouped).InfoContext(context.Background(), "test", "id", "fonts")

	output := buf.String()
	if !strings.Contains(output, `"component":"migrate"`) || !strings.Contains(output, `"asset":{"id":"fonts"}`) {
		t.Errorf("expected attributes and group in output, got: %s", output)
	}
}

func TestNewTraceHandler_NilHandler(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("NewTraceHandler with nil handler should panic")
		}
	}()

	NewTraceHandler(nil)
}

func TestLoggerFromContext_Default(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Error("expected slog.Default() when no logger is stored")
	}

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if LoggerFromContext(WithLogger(context.Background(), l)) != l {
		t.Error("expected stored logger")
	}
}
