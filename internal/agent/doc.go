// ABOUTME: Package documentation for the agent loop
// ABOUTME: Explains the Responder boundary and metadata passthrough

// Package agent runs the message loop between the bus and a Responder.
//
// The Runner subscribes to inbound messages, asks the Responder for a
// reply, and publishes the reply outbound. The originating channel, chat
// id, and metadata travel with the reply untouched; the request id inside
// the metadata is what lets the HTTP channel correlate replies back to
// waiting requests, so the Runner never inspects or rewrites it.
//
// Responder errors turn into an apologetic reply rather than silence. A
// transport waiting on a reply would otherwise sit until its timeout for
// what is already a known failure.
package agent
