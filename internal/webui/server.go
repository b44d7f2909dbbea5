// ABOUTME: Browser chat channel: login, file upload, and websocket endpoint
// ABOUTME: Each socket's reader loop publishes inbound messages onto the bus

package webui

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fuutott/nanobot/internal/auth"
	"github.com/fuutott/nanobot/internal/bus"
	"github.com/fuutott/nanobot/internal/config"
	"github.com/fuutott/nanobot/internal/metrics"
)

// ChannelName identifies this channel on bus messages.
const ChannelName = "webui"

// maxUploadBytes caps a single file upload.
const maxUploadBytes = 32 << 20

//go:embed webui.html
var indexHTML string

// Server serves the browser chat UI and its websocket endpoint.
type Server struct {
	cfg       config.WebUIConfig
	mediaDir  string
	sessions  *auth.SessionStore
	allow     *auth.AllowList
	registry  *Registry
	publisher bus.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	httpServer *http.Server
	boundAddr  string
}

func NewServer(
	cfg config.WebUIConfig,
	mediaDir string,
	sessions *auth.SessionStore,
	allow *auth.AllowList,
	registry *Registry,
	publisher bus.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		mediaDir:  mediaDir,
		sessions:  sessions,
		allow:     allow,
		registry:  registry,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /ws/{chatID}", s.handleWebSocket)
	return mux
}

// Start begins serving on the configured address. Non-blocking.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("web UI server error", "error", err)
		}
	}()

	s.logger.Info("web UI listening", "addr", s.boundAddr)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.registry.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound listen address, useful when cfg.Addr used port 0.
func (s *Server) Addr() string {
	return s.boundAddr
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	title := s.cfg.Title
	if title == "" {
		title = "nanobot"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, strings.ReplaceAll(indexHTML, "{{TITLE}}", title))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.sessions.Login(creds.Username, creds.Password)
	if err != nil {
		s.logger.Warn("login rejected", "username", creds.Username)
		sendError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Check(sessionToken(r)) {
		sendError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.mediaDir, 0o755); err != nil {
		s.logger.Error("failed to create media dir", "dir", s.mediaDir, "error", err)
		sendError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	name := uuid.NewString() + sanitizeExt(header.Filename)
	path := filepath.Join(s.mediaDir, name)

	dst, err := os.Create(path)
	if err != nil {
		s.logger.Error("failed to create upload file", "path", path, "error", err)
		sendError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		_ = os.Remove(path)
		s.logger.Error("failed to write upload", "path", path, "error", err)
		sendError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	s.logger.Info("stored upload", "path", path, "original", header.Filename)
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

// sanitizeExt keeps only a plain file extension from an uploaded name.
func sanitizeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "" {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

func sessionToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The UI is served from the same origin; non-browser clients are
	// gated by the session token instead.
	CheckOrigin: func(*http.Request) bool { return true },
}

// inboundFrame is the wire shape of a client-to-server message.
type inboundFrame struct {
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	MediaPaths []string `json:"media_paths,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")
	senderID := "web:" + remoteHost(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "chat_id", chatID, "error", err)
		return
	}

	// Auth happens after the upgrade so the client gets a close code
	// instead of an opaque handshake failure.
	if !s.sessions.Check(r.URL.Query().Get("token")) {
		s.logger.Warn("websocket rejected, bad session token", "chat_id", chatID)
		closeWithReason(conn, websocket.ClosePolicyViolation, "authentication required")
		return
	}
	if !s.allow.Allowed(senderID) {
		s.logger.Warn("websocket rejected by allow list", "sender_id", senderID)
		closeWithReason(conn, websocket.ClosePolicyViolation, "sender not allowed")
		return
	}

	s.registry.Accept(chatID, conn)
	s.logger.Info("websocket connected", "chat_id", chatID, "sender_id", senderID)

	defer func() {
		s.registry.Remove(chatID, conn)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read error", "chat_id", chatID, "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Warn("ignoring malformed frame", "chat_id", chatID, "error", err)
			continue
		}
		if frame.Type != "message" {
			s.logger.Debug("ignoring frame", "chat_id", chatID, "type", frame.Type)
			continue
		}

		content := strings.TrimSpace(frame.Content)
		if content == "" && len(frame.MediaPaths) > 0 {
			content = "[file]"
		}
		if content == "" {
			continue
		}

		msg := &bus.InboundMessage{
			Channel:  ChannelName,
			SenderID: senderID,
			ChatID:   chatID,
			Content:  content,
			Media:    frame.MediaPaths,
		}
		if err := s.publisher.PublishInbound(r.Context(), msg); err != nil {
			s.logger.Error("failed to publish inbound message", "chat_id", chatID, "error", err)
			continue
		}
		s.metrics.InboundPublished.Inc()
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
