package protocol

import (
	"encoding/base64"
)

// =============================================================================
// Helper functions for creating frames
// =============================================================================

// NewConnected signals that the conversation service handshake succeeded.
func NewConnected() Signal {
	return Signal{Type: TypeConnected}
}

// NewChatMetadata creates a chat_metadata frame.
func NewChatMetadata(chatID string) ChatMetadata {
	return ChatMetadata{Type: TypeChatMetadata, ChatID: chatID}
}

// NewUserMessage creates a user_message frame with transcribed speech.
func NewUserMessage(content string) Transcript {
	return Transcript{Type: TypeUserMessage, Content: content}
}

// NewAssistantMessage creates an assistant_message frame.
func NewAssistantMessage(content string) Transcript {
	return Transcript{Type: TypeAssistantMessage, Content: content}
}

// NewAudioOutput creates an audio_output frame from an already encoded payload.
func NewAudioOutput(b64 string) AudioOutput {
	return AudioOutput{Type: TypeAudioOutput, Data: b64}
}

// NewAudioOutputBytes creates an audio_output frame from raw bytes.
func NewAudioOutputBytes(audio []byte) AudioOutput {
	return NewAudioOutput(base64.StdEncoding.EncodeToString(audio))
}

// NewSpeakingStart creates a speaking_start frame.
func NewSpeakingStart() Signal {
	return Signal{Type: TypeSpeakingStart}
}

// NewSpeakingEnd creates a speaking_end frame.
func NewSpeakingEnd() Signal {
	return Signal{Type: TypeSpeakingEnd}
}

// NewUserInterruption creates a user_interruption frame.
func NewUserInterruption() Signal {
	return Signal{Type: TypeUserInterruption}
}

// NewError creates an error frame.
func NewError(message string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Message: message}
}

// NewPictureProcessed creates a picture_processed frame.
func NewPictureProcessed(description string) PictureProcessed {
	return PictureProcessed{Type: TypePictureProcessed, Description: description}
}

// NewClientMessage builds an inbound message with a base64 payload. Used by
// tests and the terminal client.
func NewClientMessage(t MessageType, payload []byte) ClientMessage {
	msg := ClientMessage{Type: t}
	if payload != nil {
		msg.Data = base64.StdEncoding.EncodeToString(payload)
	}
	return msg
}
