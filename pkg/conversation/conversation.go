// Package conversation provides the client side of a remote speech-to-speech
// conversation service.
//
// A Dialer opens a Session. The session accepts microphone audio and text
// context injections, and delivers the service's events in arrival order on
// a channel that is closed when the session ends.
//
// Example usage:
//
//	dialer, err := conversation.NewHume(
//	    conversation.WithAPIKey(os.Getenv("HUME_API_KEY")),
//	    conversation.WithConfigID(os.Getenv("HUME_CONFIG_ID")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sess, err := dialer.Connect(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	for ev := range sess.Events() {
//	    fmt.Println(ev.Type, ev.Text)
//	}
package conversation

import (
	"context"
)

// Dialer opens conversation sessions.
type Dialer interface {
	// Connect performs the remote handshake. It fails with ErrMissingAPIKey
	// or ErrMissingConfigID when credentials are absent, ErrAuthFailed when
	// the service rejects them, and a *ConnectionError for transport failures.
	Connect(ctx context.Context) (Session, error)
}

// Session is one live conversation.
type Session interface {
	// SendAudio forwards a chunk of raw PCM audio.
	SendAudio(pcm []byte) error

	// SendContext injects text into the conversation as if the user had said it.
	SendContext(text string) error

	// Events yields events in arrival order. The channel is closed when the
	// session ends for any reason.
	Events() <-chan Event

	// Err reports why the event stream ended, or nil after a clean close.
	Err() error

	// Close releases the session. Safe to call more than once.
	Close() error
}

// Compile-time interface checks.
var (
	_ Dialer  = (*Hume)(nil)
	_ Session = (*humeSession)(nil)
	_ Dialer  = (*Mock)(nil)
	_ Session = (*MockSession)(nil)
)
