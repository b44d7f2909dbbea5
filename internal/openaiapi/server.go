// ABOUTME: OpenAI-compatible HTTP channel exposing the agent as a chat-completion API
// ABOUTME: One request maps to one correlation entry; rendering is plain JSON or SSE

package openaiapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/fuutott/nanobot/internal/auth"
	"github.com/fuutott/nanobot/internal/bus"
	"github.com/fuutott/nanobot/internal/config"
	"github.com/fuutott/nanobot/internal/correlate"
	"github.com/fuutott/nanobot/internal/metrics"
)

// ChannelName identifies this channel on the bus.
const ChannelName = "openaiapi"

// ModelID is the single model exposed by /v1/models. The model requested by
// the client is accepted and ignored; the configured agent answers everything.
const ModelID = "nanobot-agent"

// Server is the OpenAI-compatible HTTP channel.
type Server struct {
	cfg       config.OpenAIAPIConfig
	resolver  *auth.Resolver
	allow     *auth.AllowList
	table     *correlate.Table
	publisher bus.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	httpServer *http.Server
	boundAddr  string
}

// NewServer creates the channel. The resolver must already be constructed,
// which guarantees API keys were configured before any request is served.
func NewServer(
	cfg config.OpenAIAPIConfig,
	resolver *auth.Resolver,
	allow *auth.AllowList,
	table *correlate.Table,
	publisher bus.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		resolver:  resolver,
		allow:     allow,
		table:     table,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Handler returns the channel's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /v1/models", s.requireAuth(http.HandlerFunc(s.handleModels)))
	mux.Handle("POST /v1/chat/completions", s.requireAuth(http.HandlerFunc(s.handleChatCompletions)))
	return mux
}

// Start begins serving on the configured address. Non-blocking.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		s.logger.Info("openaiapi channel started", "addr", s.boundAddr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("openaiapi server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the actual bound address (set after Start).
func (s *Server) Addr() string {
	return s.boundAddr
}

type principalKey struct{}

// requireAuth resolves the bearer token and stores the principal in the
// request context. Auth failures respond before any bus interaction.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.resolver.ResolveBearer(r.Header.Get("Authorization"))
		if err != nil {
			s.sendJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
	})
}

// principalFrom returns the authenticated principal stored by requireAuth.
func principalFrom(ctx context.Context) string {
	principal, _ := ctx.Value(principalKey{}).(string)
	return principal
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// modelsResponse wraps the model listing in the protocol's list envelope.
type modelsResponse struct {
	Object string         `json:"object"`
	Data   []openai.Model `json:"data"`
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, modelsResponse{
		Object: "list",
		Data: []openai.Model{
			{
				ID:        ModelID,
				Object:    "model",
				CreatedAt: time.Now().Unix(),
				OwnedBy:   "nanobot",
			},
		},
	})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(req.Messages) == 0 {
		s.sendJSONError(w, http.StatusBadRequest, "messages must be a non-empty array")
		return
	}

	history, prompt := normalizeMessages(req.Messages)
	if prompt == "" {
		s.sendJSONError(w, http.StatusBadRequest, "could not extract text prompt from messages")
		return
	}

	principal := principalFrom(r.Context())
	if !s.allow.Allowed(principal) {
		s.sendJSONError(w, http.StatusForbidden, "sender not allowed")
		return
	}

	if req.Model != "" && req.Model != ModelID {
		s.logger.Debug("accepted model is ignored; the configured agent answers", "model", req.Model)
	}

	requestID := correlate.NewID()
	metadata := map[string]string{bus.MetaRequestID: requestID}
	if len(history) > 0 {
		encoded, err := json.Marshal(history)
		if err != nil {
			s.sendJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		metadata[bus.MetaHistory] = string(encoded)
	}

	// The entry must exist before the publish: a reply can arrive at any
	// moment after the inbound message is on the bus.
	pending, err := s.table.Register(requestID)
	if err != nil {
		s.logger.Error("failed to register correlation", "request_id", requestID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.metrics.CorrelationsRegistered.Inc()

	in := &bus.InboundMessage{
		Channel:  ChannelName,
		SenderID: principal,
		ChatID:   chatIDFor(r, &req),
		Content:  prompt,
		Metadata: metadata,
	}
	if err := s.publisher.PublishInbound(r.Context(), in); err != nil {
		s.table.Expire(requestID)
		s.logger.Error("failed to publish inbound message", "request_id", requestID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to submit message")
		return
	}
	s.metrics.InboundPublished.Inc()

	completionID := newCompletionID()
	if req.Stream {
		s.streamCompletion(w, r, pending, completionID)
		return
	}
	s.singleCompletion(w, r, pending, completionID)
}

// singleCompletion waits for the reply and renders one JSON object.
func (s *Server) singleCompletion(w http.ResponseWriter, r *http.Request, pending *correlate.Pending, completionID string) {
	content, err := s.table.Wait(r.Context(), pending, s.cfg.RequestTimeout)
	switch {
	case errors.Is(err, correlate.ErrTimeout):
		s.metrics.CorrelationsExpired.Inc()
		s.sendJSONError(w, http.StatusGatewayTimeout, "agent response timeout")
		return
	case errors.Is(err, correlate.ErrCancelled):
		s.sendJSONError(w, http.StatusServiceUnavailable, "gateway shutting down")
		return
	case err != nil:
		// Client went away; the entry is already cleaned up.
		return
	}

	s.writeJSON(w, http.StatusOK, buildCompletion(completionID, content))
}

// streamCompletion renders the same single reply as an SSE stream: two
// chat.completion.chunk frames then [DONE]. Headers are flushed before the
// wait, so failures after this point are error-typed chunks, not statuses.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, pending *correlate.Pending, completionID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.table.Expire(pending.ID())
		s.sendJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	content, err := s.table.Wait(r.Context(), pending, s.cfg.RequestTimeout)
	switch {
	case errors.Is(err, correlate.ErrTimeout):
		s.metrics.CorrelationsExpired.Inc()
		s.writeSSE(w, buildStreamError(completionID, "agent response timeout", "timeout_error"))
		s.writeSSEDone(w)
		flusher.Flush()
		return
	case errors.Is(err, correlate.ErrCancelled):
		s.writeSSE(w, buildStreamError(completionID, "gateway shutting down", "cancelled"))
		s.writeSSEDone(w)
		flusher.Flush()
		return
	case err != nil:
		return
	}

	first, final := buildStreamChunks(completionID, content)
	s.writeSSE(w, first)
	s.writeSSE(w, final)
	s.writeSSEDone(w)
	flusher.Flush()
}

// writeSSE writes one JSON payload as an SSE data frame.
func (s *Server) writeSSE(w http.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal SSE payload", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// writeSSEDone writes the stream-termination marker.
func (s *Server) writeSSEDone(w http.ResponseWriter) {
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "error", err)
	}
}
