// ABOUTME: Gateway orchestrator wiring bus, channels, and agent lifecycle
// ABOUTME: Routes outbound replies to the correlation table or push registry

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fuutott/nanobot/internal/agent"
	"github.com/fuutott/nanobot/internal/auth"
	"github.com/fuutott/nanobot/internal/bus"
	"github.com/fuutott/nanobot/internal/config"
	"github.com/fuutott/nanobot/internal/correlate"
	"github.com/fuutott/nanobot/internal/metrics"
	"github.com/fuutott/nanobot/internal/openaiapi"
	"github.com/fuutott/nanobot/internal/webui"
)

// shutdownTimeout bounds graceful shutdown once the run context ends.
const shutdownTimeout = 5 * time.Second

// Gateway owns the message bus, the correlation table, the connection
// registry, and the enabled channel servers. All state is instance-scoped
// so tests can run gateways side by side.
type Gateway struct {
	cfg      *config.Config
	bus      *bus.Bus
	table    *correlate.Table
	registry *webui.Registry
	runner   *agent.Runner
	metrics  *metrics.Metrics
	logger   *slog.Logger

	apiServer     *openaiapi.Server
	webServer     *webui.Server
	metricsServer *http.Server
}

// New assembles a gateway from configuration. The responder is the agent
// that will answer inbound messages.
func New(cfg *config.Config, responder agent.Responder, logger *slog.Logger) (*Gateway, error) {
	m := metrics.New()
	b := bus.New(logger.With("component", "bus"))
	table := correlate.NewTable(logger.With("component", "correlate"))
	registry := webui.NewRegistry(m, logger.With("component", "registry"))
	allow := auth.NewAllowList(cfg.Gateway.AllowList)

	g := &Gateway{
		cfg:      cfg,
		bus:      b,
		table:    table,
		registry: registry,
		runner:   agent.NewRunner(b, responder, logger.With("component", "agent")),
		metrics:  m,
		logger:   logger.With("component", "gateway"),
	}

	if cfg.OpenAIAPI.Enabled {
		resolver, err := auth.NewResolver(cfg.OpenAIAPI.APIKeyMap())
		if err != nil {
			return nil, fmt.Errorf("configuring API auth: %w", err)
		}
		g.apiServer = openaiapi.NewServer(
			cfg.OpenAIAPI,
			resolver,
			allow,
			table,
			b,
			m,
			logger.With("component", "openaiapi"),
		)
	}

	if cfg.WebUI.Enabled {
		g.webServer = webui.NewServer(
			cfg.WebUI,
			cfg.Gateway.MediaDir,
			auth.NewSessionStore(cfg.WebUI.Username, cfg.WebUI.Password),
			allow,
			registry,
			b,
			m,
			logger.With("component", "webui"),
		)
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		g.metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return g, nil
}

// dispatch routes one agent reply to its transport. Replies carrying a
// request id rendezvous with a waiting HTTP request; web UI replies are
// pushed over the chat's websocket.
func (g *Gateway) dispatch(_ context.Context, msg *bus.OutboundMessage) {
	if requestID := msg.Metadata[bus.MetaRequestID]; requestID != "" {
		if g.table.Resolve(requestID, msg.Content) {
			g.metrics.CorrelationsResolved.Inc()
		} else {
			g.metrics.CorrelationsDropped.Inc()
		}
		return
	}

	switch msg.Channel {
	case webui.ChannelName:
		g.registry.SendMessage(msg.ChatID, msg.Content)
	default:
		g.logger.Warn("dropping reply for unknown channel",
			"channel", msg.Channel,
			"chat_id", msg.ChatID)
	}
}

// Run starts all components and blocks until ctx is cancelled, then shuts
// down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.start(ctx); err != nil {
		g.shutdown()
		return err
	}

	<-ctx.Done()
	g.logger.Info("context canceled, initiating shutdown")
	return g.shutdown()
}

func (g *Gateway) start(ctx context.Context) error {
	if err := g.bus.SubscribeOutbound(ctx, g.dispatch); err != nil {
		return fmt.Errorf("subscribing to outbound messages: %w", err)
	}
	if err := g.runner.Run(ctx); err != nil {
		return fmt.Errorf("starting agent runner: %w", err)
	}

	if g.apiServer != nil {
		if err := g.apiServer.Start(ctx); err != nil {
			return err
		}
	}
	if g.webServer != nil {
		if err := g.webServer.Start(ctx); err != nil {
			return err
		}
	}
	if g.metricsServer != nil {
		listener, err := net.Listen("tcp", g.metricsServer.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", g.metricsServer.Addr, err)
		}
		go func() {
			if err := g.metricsServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				g.logger.Error("metrics server error", "error", err)
			}
		}()
		g.logger.Info("metrics listening", "addr", listener.Addr().String(), "path", g.cfg.Metrics.Path)
	}

	return nil
}

// shutdown stops the channel servers concurrently, fails pending requests,
// and closes the bus.
func (g *Gateway) shutdown() error {
	g.logger.Info("shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if n := g.table.CancelAll(); n > 0 {
		g.logger.Info("cancelled pending requests", "count", n)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if g.apiServer != nil {
		eg.Go(func() error { return g.apiServer.Stop(egCtx) })
	}
	if g.webServer != nil {
		eg.Go(func() error { return g.webServer.Stop(egCtx) })
	}
	if g.metricsServer != nil {
		eg.Go(func() error { return g.metricsServer.Shutdown(egCtx) })
	}

	var errs []error
	if err := eg.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := g.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("bus close: %w", err))
	}
	return errors.Join(errs...)
}

// APIAddr returns the OpenAI-compatible server's bound address, or "" when
// the channel is disabled or not started.
func (g *Gateway) APIAddr() string {
	if g.apiServer == nil {
		return ""
	}
	return g.apiServer.Addr()
}

// WebAddr returns the web UI server's bound address, or "" when the
// channel is disabled or not started.
func (g *Gateway) WebAddr() string {
	if g.webServer == nil {
		return ""
	}
	return g.webServer.Addr()
}
