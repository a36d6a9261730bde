package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps what a monitor may send us
	maxMessageSize = 4 * 1024
)

// Client represents a single monitor connection. A client with a topic
// only sees messages for that session plus untargeted ones.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan Message
	topic string
}

// NewClient creates a new client and registers it with the hub. It returns
// nil when the hub has stopped.
func NewClient(hub *Hub, conn *websocket.Conn, topic string) *Client {
	client := &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan Message, 64),
		topic: topic,
	}
	if !hub.add(client) {
		return nil
	}
	return client
}

// Serve registers conn and pumps messages until it closes. Use it as the
// body of a websocket handler; a "session" query parameter narrows the
// feed to one session.
func (h *Hub) Serve(conn *websocket.Conn) {
	client := NewClient(h, conn, conn.Query("session"))
	if client == nil {
		_ = conn.Close()
		return
	}
	client.Run()
}

// Run starts the client's read and write pumps and blocks until the
// connection closes.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump only detects disconnection and handles pongs; monitors have
// nothing to say.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			wsType := websocket.TextMessage
			if message.Type == BinaryMessage {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, message.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
