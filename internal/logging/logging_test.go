package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestContextWithLogger(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("expected no logger, got %v", got)
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Fatal("expected the attached logger")
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("json", "warn", &buf)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "session_id", "s1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above the level, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if entry["msg"] != "shown" || entry["session_id"] != "s1" {
		t.Fatalf("unexpected entry %v", entry)
	}

	buf.Reset()
	text, err := New("text", "debug", &buf)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	text.Debug("detail")
	if !strings.Contains(buf.String(), "msg=detail") {
		t.Fatalf("expected text output, got %q", buf.String())
	}

	if _, err := New("xml", "info", &buf); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := New("json", "loud", &buf); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
