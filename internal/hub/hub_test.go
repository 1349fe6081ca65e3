package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lumivid/messaging/internal/config"
)

func newTestHub() *Hub {
	h := NewHub(config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	})
	go h.Run()
	return h
}

// testClient builds a client without a live connection; the pumps are
// never started so broadcasts land on the Send channel directly.
func testClient(h *Hub, sessionID, userID string) *Client {
	return NewClient(sessionID, userID, h, nil, config.WebSocketConfig{})
}

func recv(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &payload))
		return payload
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastToChannelReachesSubscribersOnly(t *testing.T) {
	h := newTestHub()

	sub := testClient(h, "s1", "alice")
	outsider := testClient(h, "s2", "bob")
	h.Register(sub)
	h.Register(outsider)
	h.Subscribe(sub, "conversation/c1")

	require.NoError(t, h.BroadcastToChannel("conversation/c1", map[string]string{"type": "message"}, ""))

	payload := recv(t, sub)
	require.Equal(t, "message", payload["type"])
	expectSilence(t, outsider)
}

func TestBroadcastExcludesSession(t *testing.T) {
	h := newTestHub()

	a := testClient(h, "s1", "alice")
	b := testClient(h, "s2", "bob")
	h.Register(a)
	h.Register(b)
	h.Subscribe(a, "conversation/c1")
	h.Subscribe(b, "conversation/c1")

	require.NoError(t, h.BroadcastToChannel("conversation/c1", map[string]string{"type": "message"}, "s1"))

	recv(t, b)
	expectSilence(t, a)
}

func TestBroadcastGlobalReachesEveryClient(t *testing.T) {
	h := newTestHub()

	a := testClient(h, "s1", "alice")
	b := testClient(h, "s2", "")
	h.Register(a)
	h.Register(b)

	require.NoError(t, h.BroadcastGlobal(map[string]string{"type": "online_count"}))

	recv(t, a)
	recv(t, b)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub()

	c := testClient(h, "s1", "alice")
	h.Register(c)
	h.Subscribe(c, "conversation/c1")
	require.Equal(t, 1, h.ChannelSubscriberCount("conversation/c1"))

	h.Unsubscribe(c, "conversation/c1")
	require.Zero(t, h.ChannelSubscriberCount("conversation/c1"))

	require.NoError(t, h.BroadcastToChannel("conversation/c1", map[string]string{"type": "message"}, ""))
	expectSilence(t, c)
}

func TestUnregisterRemovesChannelMemberships(t *testing.T) {
	h := newTestHub()

	c := testClient(h, "s1", "alice")
	h.Register(c)
	h.Subscribe(c, "conversation/c1")

	h.Unregister(c)

	require.Eventually(t, func() bool {
		return h.ChannelSubscriberCount("conversation/c1") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCloseSessionRemovesRegisteredClient(t *testing.T) {
	h := newTestHub()

	c := testClient(h, "s1", "alice")
	h.Register(c)
	h.Subscribe(c, "conversation/c1")

	h.CloseSession("s1")

	require.Eventually(t, func() bool {
		return h.ChannelSubscriberCount("conversation/c1") == 0
	}, time.Second, 10*time.Millisecond)

	// Unknown sessions are ignored.
	h.CloseSession("no-such-session")
}

func TestCloseSessionDisconnectsLiveClient(t *testing.T) {
	h := newTestHub()

	cfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient("s1", "alice", h, ws, cfg)
		h.Register(c)
		h.Subscribe(c, "conversation/c1")
		close(registered)
		go c.WritePump()
		c.ReadPump(func(*Client, []byte) {})
	}))
	defer srv.Close()

	dial, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer dial.Close()

	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("client never registered")
	}

	require.NoError(t, h.BroadcastToChannel("conversation/c1", map[string]string{"type": "message"}, ""))
	_, first, err := dial.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(first), "message")

	h.CloseSession("s1")

	// The evicted socket stops receiving fan-out: its end of the
	// connection errors out and the hub drops its subscriptions.
	dial.SetReadDeadline(time.Now().Add(time.Second))
	for err == nil {
		_, _, err = dial.ReadMessage()
	}
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return h.ChannelSubscriberCount("conversation/c1") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestClientUserIDBinding(t *testing.T) {
	h := newTestHub()

	c := testClient(h, "s1", "")
	require.Empty(t, c.UserID())

	c.SetUserID("alice")
	require.Equal(t, "alice", c.UserID())
}
