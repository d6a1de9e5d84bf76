package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
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
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid json log line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})
	logger.Info("hidden")
	logger.Warn("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "shown" {
		t.Fatalf("unexpected records: %v", lines)
	}
}

func TestLoggerRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})
	secret := "sk-" + strings.Repeat("a", 40)

	logger.Info("calling with "+secret,
		"api_key", "plain-value",
		"detail", "token: "+strings.Repeat("b", 20),
		"error", errors.New("bad key "+secret),
	)

	out := buf.String()
	if strings.Contains(out, secret) || strings.Contains(out, "plain-value") || strings.Contains(out, strings.Repeat("b", 20)) {
		t.Fatalf("secret leaked into log: %s", out)
	}
	if !strings.Contains(out, redacted) {
		t.Fatalf("expected redaction marker in %s", out)
	}
}

func TestLoggerContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf}).With("component", "agent")

	ctx := WithSessionID(WithRequestID(context.Background(), "req-1"), "sess-1")
	logger.InfoContext(ctx, "turn")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d", len(lines))
	}
	rec := lines[0]
	if rec["session_id"] != "sess-1" || rec["request_id"] != "req-1" || rec["component"] != "agent" {
		t.Fatalf("missing context fields: %v", rec)
	}
	if SessionID(ctx) != "sess-1" || RequestID(ctx) != "req-1" {
		t.Fatalf("context accessors returned wrong ids")
	}
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(LogConfig{Format: "text", Output: &buf}).Info("hello", "n", 1)
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text handler output, got %q", buf.String())
	}
}
