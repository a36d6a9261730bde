package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, 5*time.Millisecond)
	t.Cleanup(cancel)
	return h, cancel
}

func testClient(h *Hub, size int) *Client {
	return &Client{hub: h, send: make(chan Message, size)}
}

func TestBroadcastReachesClients(t *testing.T) {
	h, _ := startHub(t)

	a, b := testClient(h, 4), testClient(h, 4)
	require.True(t, h.add(a))
	require.True(t, h.add(b))
	assert.Equal(t, 2, h.ClientCount())

	h.Publish(Event{Type: EventSessionStarted, SessionID: "s1", Sessions: 1})

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			assert.Equal(t, JSONMessage, msg.Type)
			var ev Event
			require.NoError(t, json.Unmarshal(msg.Data, &ev))
			assert.Equal(t, EventSessionStarted, ev.Type)
			assert.Equal(t, "s1", ev.SessionID)
			assert.False(t, ev.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("broadcast not delivered")
		}
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h, _ := startHub(t)
	c := testClient(h, 1)
	require.True(t, h.add(c))

	h.remove(c)
	_, ok := <-c.send
	assert.False(t, ok)
	assert.Equal(t, 0, h.ClientCount())

	h.remove(c) // already gone
}

func TestSlowClientDropped(t *testing.T) {
	h, _ := startHub(t)
	slow := testClient(h, 1)
	require.True(t, h.add(slow))

	h.BroadcastJSON(map[string]string{"n": "1"})
	h.BroadcastJSON(map[string]string{"n": "2"})

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStoppedHubRejectsClients(t *testing.T) {
	h, cancel := startHub(t)
	c := testClient(h, 1)
	require.True(t, h.add(c))

	cancel()
	require.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, 5*time.Millisecond)

	_, ok := <-c.send
	assert.False(t, ok, "shutdown disconnects clients")
	assert.False(t, h.add(testClient(h, 1)))
	h.remove(c) // must not block
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := New("idle", nil) // loop not running
	for i := 0; i < 300; i++ {
		h.Broadcast(NewBinaryMessage([]byte{1}))
	}
	assert.Equal(t, int64(300-256), h.Dropped())
}

func TestTopicFilter(t *testing.T) {
	h, _ := startHub(t)

	all := testClient(h, 4)
	one := testClient(h, 4)
	one.topic = "s2"
	require.True(t, h.add(all))
	require.True(t, h.add(one))

	h.Publish(Event{Type: EventSessionStarted, SessionID: "s1"})
	h.Publish(Event{Type: EventSessionStarted, SessionID: "s2"})
	require.NoError(t, h.BroadcastJSON(map[string]string{"note": "everyone"}))

	require.Eventually(t, func() bool { return len(all.send) == 3 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(one.send) == 2 }, time.Second, 5*time.Millisecond)

	var ev Event
	require.NoError(t, json.Unmarshal((<-one.send).Data, &ev))
	assert.Equal(t, "s2", ev.SessionID)
}
