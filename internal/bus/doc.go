// Package bus is the message boundary between transport channels and the
// agent loop.
//
// # Topics
//
// Two topics flow through an in-process Watermill GoChannel pub/sub:
//
//   - nanobot.inbound: user messages published by transport channels
//   - nanobot.outbound: agent replies published by the agent loop
//
// # Correlation Metadata
//
// Inbound messages may carry a request_id metadata entry. The agent loop
// copies metadata through to its reply, so the gateway dispatcher can
// correlate an outbound message back to the HTTP request that produced it.
// Outbound messages without a request_id are routed by chat ID to the push
// transport instead.
//
// # Delivery Semantics
//
// The GoChannel pub/sub delivers each published message at most once per
// subscriber. Messages are acked after the handler returns; there is no
// redelivery, persistence, or cross-process fan-out.
//
// # Test Doubles
//
// Channels depend on the narrow Publisher interface rather than on Bus, so
// tests can substitute a recording publisher and assert, for example, that
// rejected requests produce zero bus traffic.
package bus
