package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Helper()
	testCases := []struct {
		level       string
		expectDebug bool
		expectWarn  bool
		expectError bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, true, true},
		{"warning", false, true, true},
		{"error", false, false, true},
		{"", false, true, true},
		{"verbose", false, true, true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.level, func(t *testing.T) {
			t.Helper()
			logger := NewLogger(tc.level, FormatText)
			if logger == nil {
				t.Fatalf("expected logger instance")
			}
			ctx := context.Background()
			if got := logger.Enabled(ctx, slog.LevelDebug); got != tc.expectDebug {
				t.Fatalf("debug enabled mismatch: got %v want %v", got, tc.expectDebug)
			}
			if got := logger.Enabled(ctx, slog.LevelWarn); got != tc.expectWarn {
				t.Fatalf("warn enabled mismatch: got %v want %v", got, tc.expectWarn)
			}
			if got := logger.Enabled(ctx, slog.LevelError); got != tc.expectError {
				t.Fatalf("error enabled mismatch: got %v want %v", got, tc.expectError)
			}
		})
	}
}

func TestNewLoggerWithWriterJSONFormat(t *testing.T) {
	t.Helper()

	var buffer bytes.Buffer
	logger := NewLoggerWithWriter(&buffer, "INFO", "JSON")
	logger.Info("relay_started", "port", 5000)

	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buffer.String(), err)
	}
	if record["msg"] != "relay_started" {
		t.Fatalf("unexpected msg field: %v", record["msg"])
	}
}

func TestNewLoggerWithWriterDefaultsToText(t *testing.T) {
	t.Helper()

	var buffer bytes.Buffer
	logger := NewLoggerWithWriter(&buffer, "INFO", "")
	logger.Info("relay_started")

	if !strings.Contains(buffer.String(), "msg=relay_started") {
		t.Fatalf("expected text handler output, got %q", buffer.String())
	}
}
