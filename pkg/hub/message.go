// Package hub fans out relay activity to monitor WebSocket clients
// using a channel-based broadcast loop.
package hub

import "time"

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data
	BinaryMessage
)

// Message represents a message to be broadcast to clients. A non-empty
// Topic restricts delivery to clients watching that topic.
type Message struct {
	Type  MessageType
	Data  []byte
	Topic string
}

func (m Message) visibleTo(topic string) bool {
	return topic == "" || m.Topic == "" || m.Topic == topic
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// EventType names a session lifecycle event.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventSessionEnded   EventType = "session_ended"
)

// Event is what monitors receive about a relay session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Sessions  int       `json:"sessions"`
	Time      time.Time `json:"time"`
}
