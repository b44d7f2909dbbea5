// Package correlate matches in-flight transport requests with the agent
// replies that eventually answer them.
//
// # The Rendezvous Problem
//
// An HTTP request publishes an inbound message and must then suspend until
// a matching outbound message arrives, with no timing relationship between
// the two. The Table is the rendezvous point:
//
//  1. The request task calls Register(id) before publishing, so the entry
//     exists even for a pathologically fast reply.
//  2. The bus dispatcher calls Resolve(id, content) when a reply arrives.
//  3. The request task blocks in Wait with a deadline.
//
// # At Most One Winner
//
// The map entry is the token of ownership: Resolve, Expire, and CancelAll
// all pop it under one mutex, and only the popper writes the (capacity one)
// completion channel. A waiter therefore observes exactly one of
// {reply, ErrTimeout, ErrCancelled}, and the losing side of any race is a
// no-op. A reply arriving after expiry is logged and dropped; the HTTP
// caller was already told "timeout" and the agent's late work has nowhere
// to go.
//
// # Shutdown
//
// CancelAll drains every entry so no request task blocks across shutdown.
// Nothing is persisted; a restart starts with an empty table.
package correlate
