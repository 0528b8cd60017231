package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// decodeLine parses one JSON log line from the buffer.
func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Expected valid JSON log line, got %q: %v", line, err)
	}
	return entry
}

func TestNew_Modes(t *testing.T) {
	for _, env := range []string{"development", "production", "test"} {
		t.Run(env, func(t *testing.T) {
			log := New(env)
			if log == nil || log.GetZerolog() == nil {
				t.Fatal("Expected logger to be created")
			}
		})
	}
}

func TestNewWithWriter_Levels(t *testing.T) {
	tests := []struct {
		env       string
		wantDebug bool
		wantInfo  bool
	}{
		{"development", true, true},
		{"production", false, true},
		{"test", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(tt.env, &buf)

			log.Debug("debug message", nil)
			gotDebug := strings.Contains(buf.String(), "debug message")
			buf.Reset()

			log.Info("info message", nil)
			gotInfo := strings.Contains(buf.String(), "info message")

			if gotDebug != tt.wantDebug {
				t.Errorf("debug emitted = %v, want %v", gotDebug, tt.wantDebug)
			}
			if gotInfo != tt.wantInfo {
				t.Errorf("info emitted = %v, want %v", gotInfo, tt.wantInfo)
			}
		})
	}
}

func TestLevelsWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{zlog: zerolog.New(&buf)}

	log.Warn("heuristic fallback used", map[string]interface{}{
		"stage":      "headers",
		"confidence": 0.25,
	})
	entry := decodeLine(t, &buf)
	if entry["level"] != "warn" || entry["stage"] != "headers" {
		t.Errorf("Unexpected warn entry: %v", entry)
	}
	buf.Reset()

	log.Error("cache lookup failed", errors.New("connection refused"), map[string]interface{}{
		"backend": "redis",
	})
	entry = decodeLine(t, &buf)
	if entry["error"] != "connection refused" || entry["backend"] != "redis" {
		t.Errorf("Unexpected error entry: %v", entry)
	}
}

func TestWithScopes(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{zlog: zerolog.New(&buf)}

	log.WithRequestID("req-12345").
		WithFile("rent_roll.xlsx", 2048).
		WithSheet("Rent Roll", 0).
		With(map[string]interface{}{"stage": "extract"}).
		Info("sheet processed", nil)

	entry := decodeLine(t, &buf)
	want := map[string]interface{}{
		"request_id":  "req-12345",
		"file":        "rent_roll.xlsx",
		"file_size":   float64(2048),
		"sheet":       "Rent Roll",
		"sheet_index": float64(0),
		"stage":       "extract",
		"message":     "sheet processed",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("Expected %s=%v, got %v", k, v, entry[k])
		}
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	// Must not panic and must not write anywhere
	log.Info("discarded", map[string]interface{}{"k": "v"})
	log.Error("discarded", errors.New("boom"), nil)
	if log.WithSheet("x", 1) == nil {
		t.Error("Expected child logger from Nop logger")
	}
}

func TestNilFields(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{zlog: zerolog.New(&buf)}

	log.Info("message with nil fields", nil)

	if !strings.Contains(buf.String(), "message with nil fields") {
		t.Error("Expected message to be logged even with nil fields")
	}
}

func TestNewCLI_Levels(t *testing.T) {
	var quiet bytes.Buffer
	NewCLI(false, &quiet).Info("Sheet extracted", map[string]interface{}{"units": 3})
	if quiet.Len() != 0 {
		t.Errorf("Expected info to be suppressed without verbose, got %q", quiet.String())
	}
	NewCLI(false, &quiet).Warn("Cache lookup failed", nil)
	if !strings.Contains(quiet.String(), "Cache lookup failed") {
		t.Errorf("Expected warning to be written, got %q", quiet.String())
	}

	var verbose bytes.Buffer
	NewCLI(true, &verbose).Debug("Extracting rows", map[string]interface{}{"sheet": "roll"})
	if !strings.Contains(verbose.String(), "Extracting rows") || !strings.Contains(verbose.String(), "sheet=roll") {
		t.Errorf("Expected debug line with fields, got %q", verbose.String())
	}
}
