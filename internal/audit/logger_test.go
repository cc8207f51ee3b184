package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "session.log")
	l := NewLogger(path)
	l.nowFunc = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }

	if err := l.Log("alice", "session.login", "success", ""); err != nil {
		t.Fatalf("Log() error: %v", err)
	}
	if err := l.Log("", "session.check", "failed", "unreachable"); err != nil {
		t.Fatalf("Log() second error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit lines, got %d", len(lines))
	}
	var e Event
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatalf("decode audit line: %v", err)
	}
	if e.Action != "session.check" || e.Outcome != "failed" || e.Detail != "unreachable" {
		t.Fatalf("unexpected audit event content: %+v", e)
	}
	if e.At != "2026-10-14T09:00:00Z" {
		t.Fatalf("unexpected timestamp %q", e.At)
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	var nilLogger *Logger
	if err := nilLogger.Log("a", "b", "c", ""); err != nil {
		t.Fatalf("nil logger Log() error: %v", err)
	}
	if err := NewLogger("").Log("a", "b", "c", ""); err != nil {
		t.Fatalf("disabled logger Log() error: %v", err)
	}
}
