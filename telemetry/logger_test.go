package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("no log output")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	return entry
}

func TestLogger_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter("info", &buf)

	log.Info(context.Background(), "event accepted", Field{Key: "event_id", Value: "evt-1"})

	entry := decodeLine(t, &buf)
	if entry["msg"] != "event accepted" {
		t.Errorf("msg = %v, want %q", entry["msg"], "event accepted")
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["event_id"] != "evt-1" {
		t.Errorf("event_id = %v, want evt-1", entry["event_id"])
	}
	if entry["timestamp"] == nil {
		t.Error("timestamp missing")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter("warn", &buf)

	log.Debug(context.Background(), "ignored")
	log.Info(context.Background(), "ignored")

	if buf.Len() != 0 {
		t.Errorf("output = %q, want empty below warn level", buf.String())
	}

	log.Error(context.Background(), "kept")
	if buf.Len() == 0 {
		t.Error("error-level entry was filtered out")
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter("info", &buf).WithComponent("dispatcher")

	log.Info(context.Background(), "dispatched")

	entry := decodeLine(t, &buf)
	if entry["component"] != "dispatcher" {
		t.Errorf("component = %v, want dispatcher", entry["component"])
	}
}

func TestLogger_RedactsPayloadFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter("info", &buf)

	log.Info(context.Background(), "dead-lettered",
		Field{Key: "payload", Value: map[string]any{"ssn": "123"}},
		Field{Key: "event_type", Value: "task.created"},
	)

	entry := decodeLine(t, &buf)
	if entry["payload"] != "[REDACTED]" {
		t.Errorf("payload = %v, want [REDACTED]", entry["payload"])
	}
	if entry["event_type"] != "task.created" {
		t.Errorf("event_type = %v, want task.created", entry["event_type"])
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNopLogger_DoesNothing(t *testing.T) {
	log := NopLogger()
	// Must not panic and WithComponent must return a usable logger.
	log.WithComponent("x").Info(context.Background(), "dropped")
}
