// ABOUTME: Package documentation for the browser chat channel
// ABOUTME: Documents the HTTP surface, websocket protocol, and push semantics

// Package webui serves the built-in browser chat client and its websocket
// transport.
//
// # HTTP surface
//
//   - GET  /            single-page chat client (embedded)
//   - GET  /health      liveness probe
//   - POST /login       exchanges username/password for a session token
//   - POST /upload      stores a file in the media directory (bearer token)
//   - GET  /ws/{chatID} websocket endpoint (token query parameter)
//
// # Websocket protocol
//
// Both directions carry JSON text frames. The client sends
//
//	{"type": "message", "content": "...", "media_paths": ["..."]}
//
// and the server pushes
//
//	{"type": "message", "content": "...", "chat_id": "..."}
//
// Frames with any other type are ignored, which leaves room for future
// frame kinds without breaking old clients. A message with attachments but
// no text is published with the placeholder content "[file]".
//
// # Connection semantics
//
// Each chat id has at most one live connection. A reconnect for the same
// chat replaces the previous connection; the superseded socket is closed
// so its reader loop unwinds instead of lingering. Authentication happens
// after the websocket upgrade so rejected clients receive a 1008 policy
// violation close code rather than an opaque handshake failure.
//
// Pushes to a chat with no live connection are dropped. The browser client
// reconnects with the same chat id and continues the conversation.
package webui
