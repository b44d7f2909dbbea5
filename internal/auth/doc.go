// Package auth provides identity resolution and authorization policy for
// the gateway's transport channels.
//
// # Authentication Methods
//
// Two credential modes exist, one per transport:
//
//   - Bearer tokens (OpenAI-compatible API): a static configured mapping
//     from API key to principal ID. An unrecognized key is rejected; an
//     empty mapping is a startup error, never a per-request one.
//
//   - Session tokens (web UI): a login step validates a static
//     username/password pair and mints a random token held in an in-memory
//     set. Unset credentials disable web UI auth entirely.
//
// # Principals and Sender Identity
//
// The resolved principal doubles as the bus-visible sender ID, so the
// allow-list check and the conversation namespace always agree. The web UI
// has no per-user credential mapping and instead derives a fallback
// identity from the caller's network address ("web:<host>").
//
// # Ordering Guarantee
//
// Every failure here short-circuits before any bus publication, correlation
// registration, or connection acceptance: rejected callers leave zero
// observable side effects on the bus.
//
// # Session Token Lifetime
//
// Session tokens have no expiry and no individual revocation; a process
// restart invalidates all of them. This mirrors the intended deployment
// (single-user, local gateway) and is a deliberate scope decision, not an
// oversight.
package auth
