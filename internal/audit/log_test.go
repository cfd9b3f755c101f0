package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"ndjobi.org/internal/auth"
	"ndjobi.org/internal/domain"
	"ndjobi.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestLogEvent(t *testing.T) {
	buf := captureLog(t)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithActor(ctx, auth.Actor{ID: "actor-42", Realm: domain.RealmGovernment})

	if err := LogEvent(ctx, "context.switched", map[string]any{"app_id": "app-dgdi"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "context.switched" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["actor_id"] != "actor-42" || entry["realm"] != "government" {
		t.Fatalf("unexpected actor: %v / %v", entry["actor_id"], entry["realm"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["app_id"] != "app-dgdi" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventWithoutActor(t *testing.T) {
	buf := captureLog(t)

	if err := LogEvent(context.Background(), "store.reset", nil); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if _, ok := entry["actor_id"]; ok {
		t.Fatalf("unexpected actor field: %v", entry)
	}
	if fields, ok := entry["fields"].(map[string]any); !ok || len(fields) != 0 {
		t.Fatalf("expected empty fields, got %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for blank event name")
	}
}
