// ABOUTME: Message bus boundary between transport channels and the agent loop
// ABOUTME: Wraps a Watermill GoChannel pub/sub with typed inbound/outbound topics

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic names for the two directions of agent traffic.
const (
	TopicInbound  = "nanobot.inbound"
	TopicOutbound = "nanobot.outbound"
)

// Metadata keys understood by the dispatcher.
const (
	// MetaRequestID correlates an outbound message with a pending HTTP
	// request. Outbound messages without it are routed by chat ID instead.
	MetaRequestID = "request_id"

	// MetaHistory carries JSON-encoded prior conversation turns supplied
	// by the client, for channels that delegate history storage.
	MetaHistory = "openai_history"
)

// InboundMessage is a user message submitted through a transport channel.
type InboundMessage struct {
	Channel  string            `json:"channel"`
	SenderID string            `json:"sender_id"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Media    []string          `json:"media,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is an agent reply to be delivered back through a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Publisher is the bus surface consumed by transport channels. Channels only
// ever publish inbound traffic; replies come back through the dispatcher.
type Publisher interface {
	PublishInbound(ctx context.Context, msg *InboundMessage) error
}

// Bus is an in-process message bus backed by a Watermill GoChannel pub/sub.
// Each published outbound message is delivered at most once to the
// outbound subscriber.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

// New creates a Bus. The logger is adapted into Watermill's logging interface.
func New(logger *slog.Logger) *Bus {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewSlogLogger(logger),
	)
	return &Bus{
		pubsub: pubsub,
		logger: logger,
	}
}

// PublishInbound publishes a user message toward the agent loop.
func (b *Bus) PublishInbound(_ context.Context, msg *InboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling inbound message: %w", err)
	}
	return b.pubsub.Publish(TopicInbound, message.NewMessage(watermill.NewUUID(), payload))
}

// PublishOutbound publishes an agent reply toward the transport channels.
func (b *Bus) PublishOutbound(_ context.Context, msg *OutboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling outbound message: %w", err)
	}
	return b.pubsub.Publish(TopicOutbound, message.NewMessage(watermill.NewUUID(), payload))
}

// SubscribeInbound delivers inbound messages to handle until ctx is
// cancelled or the bus is closed. Malformed payloads are logged and dropped.
// Messages are acked after handle returns.
func (b *Bus) SubscribeInbound(ctx context.Context, handle func(context.Context, *InboundMessage)) error {
	messages, err := b.pubsub.Subscribe(ctx, TopicInbound)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicInbound, err)
	}

	go func() {
		for msg := range messages {
			var in InboundMessage
			if err := json.Unmarshal(msg.Payload, &in); err != nil {
				b.logger.Warn("dropping malformed inbound message", "error", err, "message_id", msg.UUID)
				msg.Ack()
				continue
			}
			handle(ctx, &in)
			msg.Ack()
		}
	}()
	return nil
}

// SubscribeOutbound delivers outbound messages to handle until ctx is
// cancelled or the bus is closed. Malformed payloads are logged and dropped.
func (b *Bus) SubscribeOutbound(ctx context.Context, handle func(context.Context, *OutboundMessage)) error {
	messages, err := b.pubsub.Subscribe(ctx, TopicOutbound)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicOutbound, err)
	}

	go func() {
		for msg := range messages {
			var out OutboundMessage
			if err := json.Unmarshal(msg.Payload, &out); err != nil {
				b.logger.Warn("dropping malformed outbound message", "error", err, "message_id", msg.UUID)
				msg.Ack()
				continue
			}
			handle(ctx, &out)
			msg.Ack()
		}
	}()
	return nil
}

// Close shuts down the underlying pub/sub, terminating all subscriptions.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
