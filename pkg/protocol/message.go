// Package protocol defines the WebSocket messages exchanged between the
// browser client and the relay. Every frame is a single JSON object with a
// "type" tag; remaining fields sit next to the tag, not under an envelope.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Relay → Client messages
	TypeConnected        MessageType = "connected"
	TypeChatMetadata     MessageType = "chat_metadata"
	TypeUserMessage      MessageType = "user_message"
	TypeAssistantMessage MessageType = "assistant_message"
	TypeAudioOutput      MessageType = "audio_output"
	TypeSpeakingStart    MessageType = "speaking_start"
	TypeSpeakingEnd      MessageType = "speaking_end"
	TypeUserInterruption MessageType = "user_interruption"
	TypeError            MessageType = "error"
	TypePictureProcessed MessageType = "picture_processed"

	// Client → Relay messages
	TypeCameraEnabled  MessageType = "camera_enabled"
	TypeCameraDisabled MessageType = "camera_disabled"
	TypeFaceFrame      MessageType = "face_frame"
	TypePicture        MessageType = "picture"
	TypeAudioInput     MessageType = "audio_input"
)

// ErrInvalidMessage is returned for frames that are not a JSON object with
// a string "type" tag.
var ErrInvalidMessage = errors.New("protocol: invalid message")

// Frame is any message the relay sends to the client.
type Frame interface {
	FrameType() MessageType
}

// Encode returns the JSON encoding of a frame.
func Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", f.FrameType(), err)
	}
	return data, nil
}

// =============================================================================
// Relay → Client Frames
// =============================================================================

// Signal is a frame that carries nothing but its tag
// (connected, speaking_start, speaking_end, user_interruption).
type Signal struct {
	Type MessageType `json:"type"`
}

func (s Signal) FrameType() MessageType { return s.Type }

// ChatMetadata announces the remote chat id.
type ChatMetadata struct {
	Type   MessageType `json:"type"`
	ChatID string      `json:"chat_id"`
}

func (m ChatMetadata) FrameType() MessageType { return m.Type }

// Transcript carries user or assistant speech text.
type Transcript struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

func (m Transcript) FrameType() MessageType { return m.Type }

// AudioOutput carries one base64 encoded audio chunk, exactly as received
// from the conversation service.
type AudioOutput struct {
	Type MessageType `json:"type"`
	Data string      `json:"data"`
}

func (m AudioOutput) FrameType() MessageType { return m.Type }

// ErrorFrame reports a human-readable failure.
type ErrorFrame struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func (m ErrorFrame) FrameType() MessageType { return m.Type }

// PictureProcessed returns the caption produced for a picture.
type PictureProcessed struct {
	Type        MessageType `json:"type"`
	Description string      `json:"description"`
}

func (m PictureProcessed) FrameType() MessageType { return m.Type }

// =============================================================================
// Client → Relay Messages
// =============================================================================

// ClientMessage is an inbound frame from the browser.
// Data holds a base64 payload for face_frame, picture and audio_input.
type ClientMessage struct {
	Type MessageType `json:"type"`
	Data string      `json:"data,omitempty"`
}

// ParseClientMessage parses a JSON frame received from the client.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	var msg ClientMessage
	if t, ok := raw["type"]; ok {
		if err := json.Unmarshal(t, &msg.Type); err != nil {
			return nil, fmt.Errorf("%w: type is not a string", ErrInvalidMessage)
		}
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	if d, ok := raw["data"]; ok {
		// Non-string payloads are left empty; Payload reports them.
		_ = json.Unmarshal(d, &msg.Data)
	}
	return &msg, nil
}

// Payload decodes the base64 data field. Browser data URLs
// ("data:image/jpeg;base64,...") are accepted as well.
func (m *ClientMessage) Payload() ([]byte, error) {
	if m.Data == "" {
		return nil, fmt.Errorf("%w: %s without data", ErrInvalidMessage, m.Type)
	}
	b64 := m.Data
	if strings.HasPrefix(b64, "data:") {
		if i := strings.Index(b64, ","); i >= 0 {
			b64 = b64[i+1:]
		}
	}
	out, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 in %s: %v", ErrInvalidMessage, m.Type, err)
	}
	return out, nil
}
