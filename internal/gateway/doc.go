// ABOUTME: Package documentation for the gateway orchestrator
// ABOUTME: Explains component wiring, reply routing, and shutdown ordering

// Package gateway assembles the transport layer around a single agent.
//
// # Wiring
//
// A Gateway owns one message bus, one correlation table, one websocket
// registry, and the channel servers enabled in configuration. Inbound
// messages flow from the channels onto the bus; the agent runner consumes
// them and publishes replies back; the gateway's dispatch loop routes each
// reply to its transport.
//
// # Reply routing
//
// A reply whose metadata carries a request id belongs to a waiting HTTP
// request and is handed to the correlation table, whatever its channel
// says. Replies without a request id route by channel name; web UI replies
// are pushed over the chat's websocket, anything else is logged and
// dropped. A reply for an expired or unknown request id is dropped the
// same way, since the caller it was meant for is already gone.
//
// # Shutdown
//
// Shutdown fails every pending HTTP request first so callers get an
// immediate error instead of waiting out their timeout, then stops the
// channel servers concurrently and closes the bus.
package gateway
