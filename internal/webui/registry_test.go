// ABOUTME: Tests for the websocket connection registry
// ABOUTME: Covers replace-on-reconnect, identity-guarded removal, and eviction

package webui

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuutott/nanobot/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// wsPair spins up a loopback websocket and returns both ends.
func wsPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		accepted <- conn
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	server = <-accepted
	t.Cleanup(func() { server.Close() })
	return server, client
}

func TestRegistry_SendMessage(t *testing.T) {
	reg := NewRegistry(metrics.New(), testLogger())
	server, client := wsPair(t)

	reg.Accept("chat-1", server)
	require.Equal(t, 1, reg.Len())

	require.True(t, reg.SendMessage("chat-1", "hello"))

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var frame pushFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "message", frame.Type)
	assert.Equal(t, "hello", frame.Content)
	assert.Equal(t, "chat-1", frame.ChatID)
}

func TestRegistry_SendMessage_NoConnection(t *testing.T) {
	reg := NewRegistry(metrics.New(), testLogger())

	assert.False(t, reg.SendMessage("nobody", "hello"))
}

func TestRegistry_ReplaceOnReconnect(t *testing.T) {
	reg := NewRegistry(metrics.New(), testLogger())
	oldServer, oldClient := wsPair(t)
	newServer, newClient := wsPair(t)

	reg.Accept("chat-1", oldServer)
	reg.Accept("chat-1", newServer)
	assert.Equal(t, 1, reg.Len())

	// The superseded connection is closed.
	oldClient.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := oldClient.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	// The replacement still receives pushes.
	require.True(t, reg.SendMessage("chat-1", "still here"))
	newClient.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := newClient.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "still here")
}

func TestRegistry_Remove_IdentityGuard(t *testing.T) {
	reg := NewRegistry(metrics.New(), testLogger())
	oldServer, _ := wsPair(t)
	newServer, _ := wsPair(t)

	reg.Accept("chat-1", oldServer)
	reg.Accept("chat-1", newServer)

	// The old connection's cleanup must not evict its replacement.
	reg.Remove("chat-1", oldServer)
	assert.Equal(t, 1, reg.Len())

	reg.Remove("chat-1", newServer)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_EvictsOnWriteFailure(t *testing.T) {
	reg := NewRegistry(metrics.New(), testLogger())
	server, client := wsPair(t)

	reg.Accept("chat-1", server)
	client.Close()
	server.Close()

	assert.False(t, reg.SendMessage("chat-1", "hello"))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_Stop(t *testing.T) {
	reg := NewRegistry(metrics.New(), testLogger())
	s1, c1 := wsPair(t)
	s2, c2 := wsPair(t)

	reg.Accept("chat-1", s1)
	reg.Accept("chat-2", s2)

	reg.Stop()
	assert.Equal(t, 0, reg.Len())

	for _, client := range []*websocket.Conn{c1, c2} {
		client.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err := client.ReadMessage()
		require.Error(t, err)
	}
}
