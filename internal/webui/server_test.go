// ABOUTME: Tests for the web UI HTTP surface and websocket dispatch
// ABOUTME: Covers login, upload auth, frame handling, and rejection close codes

package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuutott/nanobot/internal/auth"
	"github.com/fuutott/nanobot/internal/bus"
	"github.com/fuutott/nanobot/internal/config"
	"github.com/fuutott/nanobot/internal/metrics"
)

// chanPublisher delivers published messages on a channel so tests can wait
// for the websocket reader goroutine.
type chanPublisher struct {
	messages chan *bus.InboundMessage
}

func newChanPublisher() *chanPublisher {
	return &chanPublisher{messages: make(chan *bus.InboundMessage, 8)}
}

func (p *chanPublisher) PublishInbound(_ context.Context, msg *bus.InboundMessage) error {
	p.messages <- msg
	return nil
}

func (p *chanPublisher) next(t *testing.T) *bus.InboundMessage {
	t.Helper()
	select {
	case msg := <-p.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
		return nil
	}
}

func newWebUIServer(t *testing.T, username, password string) (*Server, *httptest.Server, *chanPublisher) {
	t.Helper()

	publisher := newChanPublisher()
	s := NewServer(
		config.WebUIConfig{Addr: "127.0.0.1:0", Title: "test"},
		t.TempDir(),
		auth.NewSessionStore(username, password),
		auth.NewAllowList(nil),
		NewRegistry(metrics.New(), testLogger()),
		publisher,
		metrics.New(),
		testLogger(),
	)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts, publisher
}

func postLogin(t *testing.T, url, username, password string) *http.Response {
	t.Helper()

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(t, err)

	resp, err := http.Post(url+"/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestLogin(t *testing.T) {
	_, ts, _ := newWebUIServer(t, "admin", "secret")

	t.Run("valid credentials", func(t *testing.T) {
		resp := postLogin(t, ts.URL, "admin", "secret")
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Len(t, body["token"], 64)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := postLogin(t, ts.URL, "admin", "nope")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestIndex_TitleSubstitution(t *testing.T) {
	_, ts, _ := newWebUIServer(t, "", "")

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<title>test</title>")
	assert.NotContains(t, string(page), "{{TITLE}}")
}

func uploadFile(t *testing.T, url, token, filename, content string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestUpload(t *testing.T) {
	s, ts, _ := newWebUIServer(t, "admin", "secret")

	t.Run("requires session token", func(t *testing.T) {
		resp := uploadFile(t, ts.URL, "", "photo.png", "data")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("stores file", func(t *testing.T) {
		token, err := s.sessions.Login("admin", "secret")
		require.NoError(t, err)

		resp := uploadFile(t, ts.URL, token, "photo.png", "data")
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.NotEmpty(t, body["path"])
		assert.True(t, strings.HasSuffix(body["path"], ".png"))

		stored, err := os.ReadFile(body["path"])
		require.NoError(t, err)
		assert.Equal(t, "data", string(stored))
	})
}

func TestUpload_NoAuthWhenDisabled(t *testing.T) {
	_, ts, _ := newWebUIServer(t, "", "")

	resp := uploadFile(t, ts.URL, "", "notes.txt", "data")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func dialWS(t *testing.T, ts *httptest.Server, chatID, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + chatID
	if token != "" {
		url += "?token=" + token
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocket_Dispatch(t *testing.T) {
	_, ts, publisher := newWebUIServer(t, "", "")

	conn := dialWS(t, ts, "chat-9", "")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "message", "content": "hello agent"}))

	msg := publisher.next(t)
	assert.Equal(t, ChannelName, msg.Channel)
	assert.Equal(t, "chat-9", msg.ChatID)
	assert.Equal(t, "hello agent", msg.Content)
	assert.True(t, strings.HasPrefix(msg.SenderID, "web:"), "sender %q", msg.SenderID)
}

func TestWebSocket_MediaOnlyPlaceholder(t *testing.T) {
	_, ts, publisher := newWebUIServer(t, "", "")

	conn := dialWS(t, ts, "chat-9", "")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":        "message",
		"content":     "",
		"media_paths": []string{"/tmp/media/x.png"},
	}))

	msg := publisher.next(t)
	assert.Equal(t, "[file]", msg.Content)
	assert.Equal(t, []string{"/tmp/media/x.png"}, msg.Media)
}

func TestWebSocket_IgnoresUnknownFrames(t *testing.T) {
	_, ts, publisher := newWebUIServer(t, "", "")

	conn := dialWS(t, ts, "chat-9", "")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "typing"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "message", "content": "real one"}))

	msg := publisher.next(t)
	assert.Equal(t, "real one", msg.Content)
	assert.Len(t, publisher.messages, 0)
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	_, ts, _ := newWebUIServer(t, "admin", "secret")

	conn := dialWS(t, ts, "chat-9", "wrong")

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestWebSocket_PushToClient(t *testing.T) {
	s, ts, _ := newWebUIServer(t, "", "")

	conn := dialWS(t, ts, "chat-9", "")

	// The reader goroutine registers the connection after the upgrade.
	require.Eventually(t, func() bool {
		return s.registry.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, s.registry.SendMessage("chat-9", "reply"))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var frame pushFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "reply", frame.Content)
}
