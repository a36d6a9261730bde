package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/novo-relay/pkg/conversation"
)

var errFakeClosed = errors.New("fake client closed")

// fakeClient is an in-memory ClientConn.
type fakeClient struct {
	in chan fakeMessage

	mu     sync.Mutex
	frames []map[string]any

	closeOnce  sync.Once
	closed     chan struct{}
	hangupOnce sync.Once
}

type fakeMessage struct {
	kind int
	data []byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		in:     make(chan fakeMessage, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeClient) ReadMessage() (int, []byte, error) {
	select {
	case msg, ok := <-f.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return msg.kind, msg.data, nil
	case <-f.closed:
		return 0, nil, errFakeClosed
	}
}

func (f *fakeClient) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.closed:
		return errFakeClosed
	default:
	}

	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// hangup simulates the browser going away.
func (f *fakeClient) hangup() {
	f.hangupOnce.Do(func() { close(f.in) })
}

func (f *fakeClient) sendJSON(t *testing.T, v map[string]any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f.in <- fakeMessage{kind: websocket.TextMessage, data: data}
}

func (f *fakeClient) sendType(t *testing.T, msgType string) {
	f.sendJSON(t, map[string]any{"type": msgType})
}

func (f *fakeClient) sendImage(t *testing.T, msgType string, img []byte) {
	f.sendJSON(t, map[string]any{"type": msgType, "data": base64.StdEncoding.EncodeToString(img)})
}

func (f *fakeClient) Frames() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.frames...)
}

func (f *fakeClient) Types() []string {
	var types []string
	for _, fr := range f.Frames() {
		types = append(types, fr["type"].(string))
	}
	return types
}

func (f *fakeClient) framesOf(msgType string) []map[string]any {
	var out []map[string]any
	for _, fr := range f.Frames() {
		if fr["type"] == msgType {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeClient) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// logBuffer collects log output from concurrent goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// harness runs a coordinator against mocks.
type harness struct {
	t      *testing.T
	client *fakeClient
	dialer *conversation.Mock
	coord  *Coordinator
	errc   chan error
}

func start(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		client: newFakeClient(),
		dialer: conversation.NewMock(),
		errc:   make(chan error, 1),
	}
	opts = append([]Option{WithLogger(quiet())}, opts...)
	h.coord = New("test-session", h.client, h.dialer, opts...)

	go func() { h.errc <- h.coord.Run(context.Background()) }()

	require.Eventually(t, func() bool { return h.dialer.Last() != nil }, 2*time.Second, 5*time.Millisecond)
	h.waitFrames(1)

	t.Cleanup(func() {
		h.client.hangup()
		select {
		case <-h.coord.Done():
		case <-time.After(5 * time.Second):
			t.Error("coordinator did not stop")
		}
	})
	return h
}

func (h *harness) gateway() *conversation.MockSession {
	return h.dialer.Last()
}

func (h *harness) waitFrames(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.client.Frames()) >= n },
		2*time.Second, 5*time.Millisecond, "want %d frames, have %v", n, h.client.Types())
}

func (h *harness) waitContexts(n int) []string {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.gateway().Contexts()) >= n },
		2*time.Second, 5*time.Millisecond, "want %d context injections", n)
	return h.gateway().Contexts()
}

func (h *harness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("Run did not return")
		return nil
	}
}
