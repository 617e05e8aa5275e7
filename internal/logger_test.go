package internal

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_Development(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "development", "info")

	logger.Debug("hidden")
	logger.Info("report stored", "report_id", "r1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %s", out)
	}
	if !strings.Contains(out, "report_id=r1") {
		t.Errorf("expected text output, got: %s", out)
	}
}

func TestNewLogger_Production(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "production", "debug").Debug("claimed job", "job_id", "j1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["service"] != "safetyline" || record["env"] != "production" {
		t.Errorf("missing service tags: %v", record)
	}
	if record["job_id"] != "j1" {
		t.Errorf("job_id = %v, want j1", record["job_id"])
	}
}
