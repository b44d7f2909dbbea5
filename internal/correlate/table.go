// ABOUTME: Correlation table matching in-flight requests with agent replies
// ABOUTME: Register/resolve/expire are race-safe pops; each waiter sees exactly one outcome

package correlate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Correlation errors
var (
	// ErrDuplicateID indicates an id is already registered. With random
	// ids this should never happen, but it is checked, not assumed.
	ErrDuplicateID = errors.New("correlation id already registered")

	// ErrTimeout indicates no reply arrived before the deadline.
	ErrTimeout = errors.New("timed out waiting for agent reply")

	// ErrCancelled indicates the gateway shut down while waiting.
	ErrCancelled = errors.New("gateway shutting down")
)

// outcome is the single value delivered to a waiter.
type outcome struct {
	content string
	err     error
}

// Pending is one in-flight request awaiting an agent reply. The done
// channel is buffered with capacity one and written exactly once, by
// whichever of resolve/expire/cancel pops the table entry first.
type Pending struct {
	id   string
	done chan outcome
}

// ID returns the correlation id for this entry.
func (p *Pending) ID() string {
	return p.id
}

// Table is a registry of pending request correlations. All mutation happens
// under one mutex; removing the map entry is the claim that makes every
// completion path a safe no-op for late arrivals.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Pending
	logger  *slog.Logger
}

// NewTable creates an empty correlation table.
func NewTable(logger *slog.Logger) *Table {
	return &Table{
		entries: make(map[string]*Pending),
		logger:  logger,
	}
}

// NewID returns a fresh correlation id: 128 bits of randomness as hex.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Register creates a pending entry for id. The entry must exist before the
// corresponding inbound message is published, otherwise a fast reply could
// arrive with no waiter to satisfy.
func (t *Table) Register(id string) (*Pending, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return nil, ErrDuplicateID
	}

	p := &Pending{
		id:   id,
		done: make(chan outcome, 1),
	}
	t.entries[id] = p
	return p, nil
}

// Resolve completes the pending entry for id with the given content.
// Returns true when a waiter was satisfied. A missing id, typically a
// reply landing after the waiter timed out, is logged and dropped, never
// an error.
func (t *Table) Resolve(id, content string) bool {
	p, ok := t.pop(id)
	if !ok {
		t.logger.Warn("dropping reply with no pending request", "request_id", id)
		return false
	}

	p.done <- outcome{content: content}
	return true
}

// Expire fails the pending entry for id with a timeout outcome. Returns
// true when the entry was still pending; false means a concurrent Resolve
// (or shutdown) already claimed it and this call is a no-op.
func (t *Table) Expire(id string) bool {
	p, ok := t.pop(id)
	if !ok {
		return false
	}

	p.done <- outcome{err: ErrTimeout}
	return true
}

// CancelAll drains the table, failing every pending waiter with a
// cancellation outcome. Returns the number of waiters cancelled.
func (t *Table) CancelAll() int {
	t.mu.Lock()
	drained := make([]*Pending, 0, len(t.entries))
	for id, p := range t.entries {
		drained = append(drained, p)
		delete(t.entries, id)
	}
	t.mu.Unlock()

	for _, p := range drained {
		p.done <- outcome{err: ErrCancelled}
	}

	if len(drained) > 0 {
		t.logger.Info("cancelled pending correlations", "count", len(drained))
	}
	return len(drained)
}

// Len returns the number of pending entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Wait blocks until the entry resolves, the timeout elapses, or ctx ends.
// On timeout the entry is expired so any later reply is dropped; if a
// resolve wins that race the resolved content is returned instead. The
// waiter observes exactly one outcome.
func (t *Table) Wait(ctx context.Context, p *Pending, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-p.done:
		return out.content, out.err

	case <-timer.C:
		if t.Expire(p.id) {
			return "", ErrTimeout
		}
		// Lost the race: an outcome is already in flight.
		out := <-p.done
		return out.content, out.err

	case <-ctx.Done():
		// Caller went away; drop the entry so a late reply is a no-op.
		t.Expire(p.id)
		return "", ctx.Err()
	}
}

// pop atomically removes and returns the entry for id.
func (t *Table) pop(id string) (*Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return p, ok
}
