package conversation

import (
	"context"
	"sync"
)

// Mock is a mock implementation of Dialer for testing.
type Mock struct {
	mu sync.Mutex

	// ConnectFunc overrides Connect. Defaults to returning a fresh MockSession.
	ConnectFunc func(ctx context.Context) (Session, error)

	// Sessions holds every session returned by the default Connect.
	Sessions []*MockSession
}

// NewMock creates a new Mock dialer.
func NewMock() *Mock {
	return &Mock{}
}

// Connect implements Dialer.
func (m *Mock) Connect(ctx context.Context) (Session, error) {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	s := NewMockSession()
	m.mu.Lock()
	m.Sessions = append(m.Sessions, s)
	m.mu.Unlock()
	return s, nil
}

// Last returns the most recent session, or nil.
func (m *Mock) Last() *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sessions) == 0 {
		return nil
	}
	return m.Sessions[len(m.Sessions)-1]
}

// MockSession is a mock implementation of Session for testing.
type MockSession struct {
	mu sync.Mutex

	events    chan Event
	closed    bool
	closeOnce sync.Once
	err       error

	// Configurable behavior
	SendAudioFunc   func(pcm []byte) error
	SendContextFunc func(text string) error
	CloseFunc       func() error

	// Captured calls for assertions
	AudioSent   [][]byte
	ContextSent []string
	CloseCalls  int
}

// NewMockSession creates a MockSession with a buffered event channel.
func NewMockSession() *MockSession {
	return &MockSession{events: make(chan Event, 64)}
}

// SendAudio implements Session.
func (m *MockSession) SendAudio(pcm []byte) error {
	if m.SendAudioFunc != nil {
		return m.SendAudioFunc(pcm)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	m.AudioSent = append(m.AudioSent, append([]byte(nil), pcm...))
	return nil
}

// SendContext implements Session.
func (m *MockSession) SendContext(text string) error {
	if m.SendContextFunc != nil {
		return m.SendContextFunc(text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	m.ContextSent = append(m.ContextSent, text)
	return nil
}

// Events implements Session.
func (m *MockSession) Events() <-chan Event {
	return m.events
}

// Err implements Session.
func (m *MockSession) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close implements Session.
func (m *MockSession) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()

	m.finish(nil)

	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// IsClosed reports whether Close or Drop was called.
func (m *MockSession) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Contexts returns a copy of the captured context injections.
func (m *MockSession) Contexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ContextSent...)
}

// AudioChunks returns the number of captured audio chunks.
func (m *MockSession) AudioChunks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.AudioSent)
}

// Simulation helpers for testing

// Emit delivers an event as if the service had sent it. It is a no-op once
// the session has ended.
func (m *MockSession) Emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.events <- ev
}

// SimulateAudio emits an audio_output event carrying b64.
func (m *MockSession) SimulateAudio(b64 string) {
	m.Emit(Event{Type: EventAudioOutput, Tag: string(EventAudioOutput), Data: b64})
}

// SimulateError emits an error event.
func (m *MockSession) SimulateError(message string) {
	m.Emit(Event{Type: EventError, Tag: string(EventError), Message: message})
}

// Drop ends the event stream as if the connection had been lost.
func (m *MockSession) Drop(err error) {
	m.finish(err)
}

func (m *MockSession) finish(err error) {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.closed = true
		m.err = err
		close(m.events)
	})
}
