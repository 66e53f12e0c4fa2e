package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
)

func TestSetup(t *testing.T) {
	// Reset logger for testing
	logger = nil
	once = *new(sync.Once)

	Setup("DEBUG", "json")
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, nil)
	logger = slog.New(h)

	l2 := WithComponent("test-comp")
	l2.Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if out["component"] != "test-comp" {
		t.Errorf("Expected component 'test-comp', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, nil)
	logger = slog.New(h)

	l2 := WithRun("run-123")
	l2.Info("run msg")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if out["run_id"] != "run-123" {
		t.Errorf("Expected run_id 'run-123', got %v", out["run_id"])
	}
}
