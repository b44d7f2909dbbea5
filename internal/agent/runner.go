// ABOUTME: Agent loop consuming inbound messages and publishing replies
// ABOUTME: Bridges a pluggable Responder to the message bus

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fuutott/nanobot/internal/bus"
)

// Responder produces the agent's reply to one inbound message.
type Responder interface {
	Respond(ctx context.Context, msg *bus.InboundMessage) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, msg *bus.InboundMessage) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, msg *bus.InboundMessage) (string, error) {
	return f(ctx, msg)
}

// Runner subscribes to inbound messages, invokes the responder, and
// publishes each reply back onto the bus with the originating channel,
// chat id, and metadata preserved.
type Runner struct {
	bus       *bus.Bus
	responder Responder
	logger    *slog.Logger
}

func NewRunner(b *bus.Bus, responder Responder, logger *slog.Logger) *Runner {
	return &Runner{bus: b, responder: responder, logger: logger}
}

// Run starts consuming inbound messages. It returns once the subscription
// is established; delivery continues until ctx is cancelled or the bus
// closes.
func (r *Runner) Run(ctx context.Context) error {
	return r.bus.SubscribeInbound(ctx, r.handle)
}

func (r *Runner) handle(ctx context.Context, msg *bus.InboundMessage) {
	r.logger.Debug("agent handling message",
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"sender_id", msg.SenderID)

	content, err := r.responder.Respond(ctx, msg)
	if err != nil {
		r.logger.Error("responder failed",
			"channel", msg.Channel,
			"chat_id", msg.ChatID,
			"error", err)
		content = "Sorry, something went wrong handling that message."
	}

	out := &bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		Content:  content,
		Metadata: msg.Metadata,
	}
	if err := r.bus.PublishOutbound(ctx, out); err != nil {
		r.logger.Error("failed to publish reply",
			"channel", msg.Channel,
			"chat_id", msg.ChatID,
			"error", err)
	}
}

// EchoResponder replies with the inbound content, useful for wiring tests
// and for running the gateway without a model behind it.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, msg *bus.InboundMessage) (string, error) {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return "I received an empty message.", nil
	}
	return fmt.Sprintf("You said: %s", content), nil
}
