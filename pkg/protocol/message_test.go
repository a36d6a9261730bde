package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"connected", NewConnected(), `{"type":"connected"}`},
		{"chat metadata", NewChatMetadata("c-1"), `{"type":"chat_metadata","chat_id":"c-1"}`},
		{"user message", NewUserMessage("hi"), `{"type":"user_message","content":"hi"}`},
		{"empty assistant message", NewAssistantMessage(""), `{"type":"assistant_message","content":""}`},
		{"audio output", NewAudioOutput("UklGRg=="), `{"type":"audio_output","data":"UklGRg=="}`},
		{"audio output bytes", NewAudioOutputBytes([]byte("RIFF")), `{"type":"audio_output","data":"UklGRg=="}`},
		{"speaking start", NewSpeakingStart(), `{"type":"speaking_start"}`},
		{"speaking end", NewSpeakingEnd(), `{"type":"speaking_end"}`},
		{"interruption", NewUserInterruption(), `{"type":"user_interruption"}`},
		{"error", NewError("boom"), `{"type":"error","message":"boom"}`},
		{"picture processed", NewPictureProcessed("a cat"), `{"type":"picture_processed","description":"a cat"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.frame)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType MessageType
		wantErr  bool
	}{
		{"camera enabled", `{"type":"camera_enabled"}`, TypeCameraEnabled, false},
		{"camera disabled", `{"type":"camera_disabled"}`, TypeCameraDisabled, false},
		{"face frame", `{"type":"face_frame","data":"aGk="}`, TypeFaceFrame, false},
		{"unknown type still parses", `{"type":"dance"}`, "dance", false},
		{"extra fields ignored", `{"type":"picture","data":"aGk=","ts":1}`, TypePicture, false},
		{"not json", `hello`, "", true},
		{"array", `[1,2]`, "", true},
		{"missing type", `{"data":"aGk="}`, "", true},
		{"numeric type", `{"type":5}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseClientMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClientMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidMessage) {
					t.Errorf("error should wrap ErrInvalidMessage: %v", err)
				}
				return
			}
			if msg.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", msg.Type, tt.wantType)
			}
		})
	}
}

func TestPayload(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{"plain base64", "aGVsbG8=", "hello", false},
		{"data url", "data:image/jpeg;base64,aGVsbG8=", "hello", false},
		{"empty", "", "", true},
		{"garbage", "%%%not-base64", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &ClientMessage{Type: TypePicture, Data: tt.data}
			got, err := msg.Payload()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Payload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && string(got) != tt.want {
				t.Errorf("Payload() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNonStringDataIsRejectedByPayload(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"face_frame","data":{"x":1}}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if _, err := msg.Payload(); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Payload() error = %v, want ErrInvalidMessage", err)
	}
}

func TestNewClientMessage(t *testing.T) {
	msg := NewClientMessage(TypeAudioInput, []byte{1, 2, 3})
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	got, err := parsed.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Errorf("Payload() = %v", got)
	}

	bare := NewClientMessage(TypeCameraEnabled, nil)
	if bare.Data != "" {
		t.Errorf("Data = %q, want empty", bare.Data)
	}
}
