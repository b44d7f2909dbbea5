// ABOUTME: Connection registry mapping chat ids to live websocket connections
// ABOUTME: Enforces at most one connection per chat with replace-on-reconnect

package webui

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/fuutott/nanobot/internal/metrics"
)

// pushFrame is the wire shape of a server-to-client message.
type pushFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	ChatID  string `json:"chat_id"`
}

// Registry tracks the live websocket connection for each chat. A chat has
// at most one connection; a reconnect replaces the previous one.
type Registry struct {
	mu      sync.Mutex
	conns   map[string]*websocket.Conn
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRegistry(m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{
		conns:   make(map[string]*websocket.Conn),
		metrics: m,
		logger:  logger,
	}
}

// Accept registers conn as the connection for chatID. An existing
// connection for the same chat is closed so its reader loop unwinds.
func (r *Registry) Accept(chatID string, conn *websocket.Conn) {
	r.mu.Lock()
	old := r.conns[chatID]
	r.conns[chatID] = conn
	r.mu.Unlock()

	if old != nil {
		r.logger.Info("replacing existing connection", "chat_id", chatID)
		go closeWithReason(old, websocket.CloseNormalClosure, "replaced by new connection")
	} else {
		r.metrics.ActiveConnections.Inc()
	}
}

// Remove drops conn's registration. It is a no-op when the chat has
// already been taken over by a newer connection.
func (r *Registry) Remove(chatID string, conn *websocket.Conn) {
	r.mu.Lock()
	current, ok := r.conns[chatID]
	if ok && current == conn {
		delete(r.conns, chatID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.metrics.ActiveConnections.Dec()
	}
}

// SendMessage pushes an agent reply to the chat's connection. It reports
// whether a connection was present and the write succeeded; a failed write
// evicts the connection.
func (r *Registry) SendMessage(chatID, content string) bool {
	payload, err := json.Marshal(pushFrame{Type: "message", Content: content, ChatID: chatID})
	if err != nil {
		r.logger.Error("failed to encode push frame", "chat_id", chatID, "error", err)
		return false
	}

	r.mu.Lock()
	conn, ok := r.conns[chatID]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("no connection for chat, dropping message", "chat_id", chatID)
		return false
	}

	// Writing under the lock serializes writers on the single connection.
	err = conn.WriteMessage(websocket.TextMessage, payload)
	if err != nil {
		delete(r.conns, chatID)
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("push failed, evicting connection", "chat_id", chatID, "error", err)
		r.metrics.ActiveConnections.Dec()
		_ = conn.Close()
		return false
	}
	return true
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Stop closes every connection and clears the registry.
func (r *Registry) Stop() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*websocket.Conn)
	r.mu.Unlock()

	for chatID, conn := range conns {
		closeWithReason(conn, websocket.CloseGoingAway, "server shutting down")
		r.logger.Debug("closed connection", "chat_id", chatID)
		r.metrics.ActiveConnections.Dec()
	}
}

func closeWithReason(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = conn.Close()
}
