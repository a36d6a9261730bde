package conversation

import (
	"encoding/base64"
	"fmt"
)

// EventType is the tag of an event received from the conversation service.
type EventType string

const (
	EventChatMetadata     EventType = "chat_metadata"
	EventUserMessage      EventType = "user_message"
	EventAssistantMessage EventType = "assistant_message"
	EventAudioOutput      EventType = "audio_output"
	EventAssistantEnd     EventType = "assistant_end"
	EventUserInterruption EventType = "user_interruption"
	EventError            EventType = "error"
	EventUnknown          EventType = "unknown"
)

// Event is one message from the conversation service. Only the fields that
// belong to Type are populated.
type Event struct {
	Type EventType

	// Tag is the raw wire tag. It differs from Type only for EventUnknown.
	Tag string

	// ChatID is set for EventChatMetadata.
	ChatID string

	// Text is the transcript for user and assistant messages.
	Text string

	// Data is the base64 audio payload for EventAudioOutput.
	Data string

	// Message and Code describe an EventError.
	Message string
	Code    string

	// Emotions holds the strongest prosody scores of a user message.
	Emotions []Emotion
}

// Emotion is a single prosody score.
type Emotion struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Audio decodes the audio payload.
func (e Event) Audio() ([]byte, error) {
	if e.Type != EventAudioOutput {
		return nil, fmt.Errorf("%w: %s event carries no audio", ErrInvalidMessage, e.Type)
	}
	b, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: audio payload: %v", ErrInvalidMessage, err)
	}
	return b, nil
}

// String returns a short description for logging.
func (e Event) String() string {
	switch e.Type {
	case EventChatMetadata:
		return fmt.Sprintf("chat_metadata(%s)", e.ChatID)
	case EventUserMessage, EventAssistantMessage:
		return fmt.Sprintf("%s(%q)", e.Type, e.Text)
	case EventAudioOutput:
		return fmt.Sprintf("audio_output(%d b64 bytes)", len(e.Data))
	case EventError:
		return fmt.Sprintf("error(%s: %s)", e.Code, e.Message)
	case EventUnknown:
		return fmt.Sprintf("unknown(%s)", e.Tag)
	default:
		return string(e.Type)
	}
}
