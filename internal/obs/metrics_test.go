package obs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                         "/",
		"/metrics":                                 "/metrics",
		"/v1/conversations":                        "/v1/conversations",
		"/v1/conversations/01HX":                   "/v1/conversations/:id",
		"/v1/conversations/01HX/messages":          "/v1/conversations/:id/messages",
		"/v1/conversations/01HX/extra":             "/v1/conversations/01HX/extra",
		"/v1/threads/01HX/messages?limit=10":       "/v1/threads/:id/messages",
		"/v1/threads/01HX/messages/01HY/read":      "/v1/threads/:id/messages/:mid/read",
		"/v1/capabilities":                         "/v1/capabilities",
		"/v1/realtime/connect":                     "/v1/realtime/connect",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestLogWritesJSONLine(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	Warn("context.fallback", map[string]any{"key": "comms.mode", "msg": "ignored"})

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "context.fallback" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["key"] != "comms.mode" {
		t.Fatalf("missing field: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("missing ts: %v", entry)
	}
}
