// Package protocol defines the websocket messages of the streaming interaction endpoint.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeInteractRequest   MessageType = "interact_request"
	TypeClientControl     MessageType = "client_control"
	TypeStageEvent        MessageType = "stage_event"
	TypeInteractionResult MessageType = "interaction_result"
	TypeErrorEvent        MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// InteractRequest carries one utterance; AudioData is base64 on the wire.
type InteractRequest struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	AudioData []byte      `json:"audio_data"`
}

// ClientControl asks the server to act on the connection ("close").
type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type StageEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	SessionID string      `json:"session_id"`
	Stage     string      `json:"stage"`
	ElapsedMS int64       `json:"elapsed_ms"`
	Detail    any         `json:"detail,omitempty"`
}

type InteractionResult struct {
	Type             MessageType `json:"type"`
	RequestID        string      `json:"request_id,omitempty"`
	WakeWordDetected bool        `json:"wake_word_detected"`
	Transcription    *string     `json:"transcription,omitempty"`
	Answer           *string     `json:"answer,omitempty"`
	AudioResponse    []byte      `json:"audio_response,omitempty"`
	SessionID        string      `json:"session_id"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeInteractRequest:
		var msg InteractRequest
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid interact_request: %w", err)
		}
		if len(msg.AudioData) == 0 {
			return nil, errors.New("invalid interact_request: audio_data is required")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
