package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_IncludesCallFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf).WithCall(CallMeta{
		Op:   "call",
		ID:   "users.get",
		Key:  "users.get_'a'_undefined",
		Tags: []string{"a"},
	})

	logger.Info(context.Background(), "cache hit")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["msg"] != "cache hit" {
		t.Errorf("msg = %v", e["msg"])
	}
	if e["level"] != "info" {
		t.Errorf("level = %v", e["level"])
	}
	if e["cache.op"] != "call" || e["cache.id"] != "users.get" {
		t.Errorf("missing call fields: %v", e)
	}
	if _, ok := e["cache.key"]; ok {
		t.Error("derived key must not be logged")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries at warn level, got %d", len(entries))
	}
	if entries[0]["level"] != "warn" || entries[1]["level"] != "error" {
		t.Errorf("unexpected levels: %v, %v", entries[0]["level"], entries[1]["level"])
	}
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "request",
		F("token", "dz_live_secret"),
		F("data", "compressed-bytes"),
		F("rows", 3),
	)

	out := buf.String()
	if strings.Contains(out, "dz_live_secret") || strings.Contains(out, "compressed-bytes") {
		t.Fatalf("sensitive values leaked: %s", out)
	}
	e := decodeLines(t, &buf)[0]
	if e["token"] != "[REDACTED]" {
		t.Errorf("token = %v", e["token"])
	}
	if e["rows"] != float64(3) {
		t.Errorf("rows = %v", e["rows"])
	}
}

func TestLogger_ErrorFieldRendered(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Warn(context.Background(), "fallback", F("error", errors.New("store down")))

	e := decodeLines(t, &buf)[0]
	if e["error"] != "store down" {
		t.Errorf("error = %v, want rendered message", e["error"])
	}
}

func TestLogger_WithCallSharesWriter(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLoggerWithWriter("info", &buf)
	child := parent.WithCall(CallMeta{Op: "put"})

	parent.Info(context.Background(), "one")
	child.Info(context.Background(), "two")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if _, ok := entries[0]["cache.op"]; ok {
		t.Error("parent logger must not inherit child attributes")
	}
	if entries[1]["cache.op"] != "put" {
		t.Errorf("child cache.op = %v", entries[1]["cache.op"])
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNopLogger_NoPanic(t *testing.T) {
	l := NopLogger()
	ctx := context.Background()
	l.Debug(ctx, "x")
	l.Info(ctx, "x")
	l.Warn(ctx, "x")
	l.Error(ctx, "x")
	if l.WithCall(CallMeta{Op: "get"}) == nil {
		t.Fatal("WithCall returned nil")
	}
}
