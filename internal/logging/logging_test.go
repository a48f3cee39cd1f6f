package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewWriter_JSONCarriesService(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "info")

	var buf bytes.Buffer
	NewWriter(&buf).Info("hello", slog.String("k", "v"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if rec["service"] != "docrag" || rec["msg"] != "hello" || rec["k"] != "v" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNewWriter_LevelFilters(t *testing.T) {
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	log := NewWriter(&buf)
	log.Info("dropped")
	log.Warn("kept")

	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) != slog.Default() {
		t.Error("empty context should yield slog.Default()")
	}

	l := slog.New(slog.DiscardHandler)
	if FromContext(WithLogger(context.Background(), l)) != l {
		t.Error("FromContext did not return the stored logger")
	}
}
