package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_SessionContext(t *testing.T) {
	var buf bytes.Buffer
	page := "file:///tmp/index.html"
	logger := newLoggerWithWriter(&SessionMeta{SessionID: "sess-1", Page: &page}, &buf)

	logger.Info("bridge ready", map[string]any{"handlers": 2})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want %q", entry["session_id"], "sess-1")
	}
	if entry["page"] != page {
		t.Errorf("page = %v, want %q", entry["page"], page)
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want %q", entry["level"], "info")
	}
	if entry["message"] != "bridge ready" {
		t.Errorf("message = %v, want %q", entry["message"], "bridge ready")
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
}

func TestLogger_WithOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&SessionMeta{SessionID: "sess-2"}).WithOutput(&buf)
	logger.Warn("unknown handler", map[string]any{"handler": "nope"})

	if !strings.Contains(buf.String(), `"session_id":"sess-2"`) {
		t.Errorf("output missing session context: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"handler":"nope"`) {
		t.Errorf("output missing fields: %s", buf.String())
	}
}

func TestLogger_NilIsSafe(t *testing.T) {
	var logger *Logger
	logger.Debug("dropped", nil)
	logger.Error("dropped", map[string]any{"k": "v"})
	logger.Sugar().Infof("dropped %d", 1)
	_ = logger.Sync()
}

func TestLogger_Nop(t *testing.T) {
	var buf bytes.Buffer
	NewNop().Info("nothing", nil)
	if buf.Len() != 0 {
		t.Errorf("nop logger wrote %q", buf.String())
	}
}
