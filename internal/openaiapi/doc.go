// Package openaiapi exposes the agent through an OpenAI-compatible HTTP
// surface.
//
// # Endpoints
//
//   - GET  /health               liveness, no auth
//   - GET  /v1/models            static single-model listing
//   - POST /v1/chat/completions  single-shot JSON or SSE streaming
//
// # Request Lifecycle
//
// A request is validated, its bearer principal resolved and checked
// against the allow list, then a correlation entry is registered before
// the inbound message is published. The handler waits on the entry with a
// deadline and renders whatever outcome arrives. Auth and validation
// failures respond before anything touches the bus.
//
// # Streaming Emulation
//
// The agent produces one reply, not a token stream. Streamed responses
// emit exactly two chunk frames, the full reply as a single delta then a
// terminal stop chunk, followed by "data: [DONE]". Streamed and plain
// renderings of the same reply carry byte-identical text; only the framing
// differs. A timeout after headers are flushed becomes an error-typed
// chunk, since a status code is no longer possible.
//
// # Identity
//
// The bearer token maps statically to a principal ID which serves as both
// the allow-list subject and the bus-visible sender. The chat key for
// session continuity comes from the request's user field, conversation
// headers, or the caller's address, in that order.
package openaiapi
