package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseClientMessageInteractRequest(t *testing.T) {
	raw := []byte(`{"type":"interact_request","request_id":"r1","audio_data":"AQID"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	req, ok := msg.(InteractRequest)
	if !ok {
		t.Fatalf("message type = %T, want InteractRequest", msg)
	}
	if req.RequestID != "r1" || string(req.AudioData) != "\x01\x02\x03" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestParseClientMessageRejectsBadAudio(t *testing.T) {
	for _, raw := range []string{
		`{"type":"interact_request"}`,
		`{"type":"interact_request","audio_data":""}`,
		`{"type":"interact_request","audio_data":"not base64!"}`,
	} {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseClientMessage(%s) error = nil, want error", raw)
		}
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
	if _, err := ParseClientMessage([]byte(`{`)); err == nil || !strings.Contains(err.Error(), "invalid envelope") {
		t.Fatalf("error = %v, want invalid envelope", err)
	}
}

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"close"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	control, ok := msg.(ClientControl)
	if !ok || control.Action != "close" {
		t.Fatalf("message = %#v, want close control", msg)
	}
	if _, err := ParseClientMessage([]byte(`{"type":"client_control"}`)); err == nil {
		t.Fatalf("ParseClientMessage() accepted control without action")
	}
}

func TestInteractionResultOmitsMissingFields(t *testing.T) {
	b, err := json.Marshal(InteractionResult{Type: TypeInteractionResult, SessionID: "s1"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got := string(b)
	if strings.Contains(got, "transcription") || strings.Contains(got, "answer") || strings.Contains(got, "audio_response") {
		t.Fatalf("unexpected fields in %s", got)
	}
	if !strings.Contains(got, `"wake_word_detected":false`) {
		t.Fatalf("missing wake_word_detected in %s", got)
	}
}
