package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInit_StderrLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Stderr: &buf}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer Close()

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Error("debug should be suppressed without Verbose")
	}
	if strings.Contains(out, "info message") {
		t.Error("info should be suppressed without Verbose")
	}
	if !strings.Contains(out, "warn message") {
		t.Error("warn should be written to stderr")
	}
	if !strings.Contains(out, "error message") {
		t.Error("error should be written to stderr")
	}
}

func TestInit_Verbose(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Verbose: true, Stderr: &buf}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer Close()

	Debug("debug message")

	if !strings.Contains(buf.String(), "debug message") {
		t.Error("debug should be written when Verbose is set")
	}
}

func TestInit_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{JSONFormat: true, Stderr: &buf}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer Close()

	Warn("structured", "sandbox_id", "sb-123")

	line := strings.TrimSpace(buf.String())
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, line)
	}
	if record["msg"] != "structured" {
		t.Errorf("msg = %v, want %q", record["msg"], "structured")
	}
	if record["sandbox_id"] != "sb-123" {
		t.Errorf("sandbox_id = %v, want %q", record["sandbox_id"], "sb-123")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Verbose: true, Stderr: &buf}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer Close()

	With("user_id", "u1").Info("attached")

	out := buf.String()
	if !strings.Contains(out, "user_id=u1") {
		t.Errorf("expected user_id attribute in output, got %q", out)
	}
}
