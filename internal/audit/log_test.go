package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"bastionrp.ru/internal/obs"
	"bastionrp.ru/internal/token"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = token.ContextWithSnapshot(ctx, token.Snapshot{UserID: "user-42", Username: "mod"})

	if err := LogEvent(ctx, "moderation.ban", map[string]any{"target": "user-7"}); err != nil {
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
	if entry["event"] != "moderation.ban" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["target"] != "user-7" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, MaxRecent},
		{-5, MaxRecent},
		{1, 1},
		{50, 50},
		{MaxRecent, MaxRecent},
		{500, MaxRecent},
	}
	for _, c := range cases {
		if got := ClampLimit(c.in); got != c.want {
			t.Fatalf("ClampLimit(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestNormalizeAction(t *testing.T) {
	if got := Normalize(" ban "); got != ActionBan {
		t.Fatalf("Normalize: %q", got)
	}
	if !ActionAssignFaction.Valid() {
		t.Fatal("ASSIGN_FACTION should be valid")
	}
	if Action("PROMOTE").Valid() {
		t.Fatal("unknown action should be invalid")
	}
}
