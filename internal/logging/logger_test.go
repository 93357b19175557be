package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"endlessdrive/server/internal/config"
)

func TestWriterLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriterLogger(&buf, "warn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", Int("segment", 4), Float64("speed", 1.5))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["message"] != "kept" || payload["service"] != "endlessdrive" || payload["level"] != "warn" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload["segment"].(float64) != 4 || payload["speed"].(float64) != 1.5 {
		t.Fatalf("fields missing from payload %+v", payload)
	}
}

func TestWriterLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewWriterLogger(nil, "loud"); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	base, _ := NewWriterLogger(&buf, "debug")
	base.With(String("run", "r1")).Debug("tick")
	if !strings.Contains(buf.String(), `"run":"r1"`) {
		t.Fatalf("expected derived field in %q", buf.String())
	}
}

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drive.log")
	logger, err := New(config.LoggingConfig{Level: "info", Path: path, MaxSizeMB: 1, FileOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ReplaceGlobals(NewTestLogger())
	logger.Info("started")
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"message":"started"`) {
		t.Fatalf("log file missing entry: %q", data)
	}
}

func TestHTTPTraceMiddlewarePropagatesHeader(t *testing.T) {
	var seen string
	handler := HTTPTraceMiddleware(NewTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(TraceIDHeader, "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "abc" || rec.Header().Get(TraceIDHeader) != "abc" {
		t.Fatalf("trace id not propagated: ctx=%q header=%q", seen, rec.Header().Get(TraceIDHeader))
	}
}

func TestLoggerFromContextFallsBack(t *testing.T) {
	if LoggerFromContext(context.Background()) == nil {
		t.Fatalf("expected global fallback logger")
	}
	custom := NewTestLogger()
	ctx := ContextWithLogger(context.Background(), custom)
	if LoggerFromContext(ctx) != custom {
		t.Fatalf("expected context logger")
	}
}
