package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSessionSubject(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	want := "accord.session.11111111-2222-3333-4444-555555555555.events"
	if got := SessionSubject(id); got != want {
		t.Errorf("expected subject %q, got %q", want, got)
	}
}

func TestEnvelopeParsing(t *testing.T) {
	raw := `{
		"event": "empathy.share_suggested",
		"session_id": "11111111-2222-3333-4444-555555555555",
		"payload": {"offerId": "abc"},
		"exclude_user_id": "66666666-7777-8888-9999-000000000000",
		"timestamp": "2026-05-01T12:00:00Z"
	}`

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("failed to parse Envelope: %v", err)
	}

	if env.Event != "empathy.share_suggested" {
		t.Errorf("expected event 'empathy.share_suggested', got %q", env.Event)
	}
	if env.SessionID.String() != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("unexpected session id %s", env.SessionID)
	}
	if env.ExcludeUserID != "66666666-7777-8888-9999-000000000000" {
		t.Errorf("unexpected exclude_user_id %q", env.ExcludeUserID)
	}
	if env.Payload["offerId"] != "abc" {
		t.Errorf("unexpected payload %v", env.Payload)
	}
}

func TestEnvelopeBroadcastOmitsExclude(t *testing.T) {
	env := Envelope{
		Event:     "empathy.revealed",
		SessionID: uuid.New(),
		Payload:   map[string]any{"direction": "outgoing"},
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var asMap map[string]any
	if err := json.Unmarshal(data, &asMap); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if _, present := asMap["exclude_user_id"]; present {
		t.Error("expected exclude_user_id to be omitted for broadcasts")
	}
}
