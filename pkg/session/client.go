package session

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/novo-relay/pkg/protocol"
)

// errClientClosed is returned by send once the client side has been closed.
var errClientClosed = errors.New("session: client connection closed")

// ClientConn is the browser side of a session. Gorilla and Fiber
// WebSocket connections both satisfy it.
type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// clientWriter serializes frames onto a ClientConn. After close every
// send is dropped.
type clientWriter struct {
	conn   ClientConn
	mu     sync.Mutex
	closed atomic.Bool
	sent   atomic.Int64
}

func newClientWriter(conn ClientConn) *clientWriter {
	return &clientWriter{conn: conn}
}

func (w *clientWriter) send(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed.Load() {
		return errClientClosed
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	w.sent.Add(1)
	return nil
}

// close does not take the write lock so that it can unblock a stuck write.
func (w *clientWriter) close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	return w.conn.Close()
}

func (w *clientWriter) isClosed() bool {
	return w.closed.Load()
}
