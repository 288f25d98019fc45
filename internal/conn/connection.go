// Package conn defines the Connection, PendingResult, and ProcessBuffer
// data model owned exclusively by the Connection Hub (C8).
package conn

import (
	"fmt"
	"sync"
	"time"

	"github.com/GoatGit/semibot-sub006/internal/normalize"
)

// Status is a Connection's lifecycle state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady         Status = "ready"
	StatusDisconnected  Status = "disconnected"
)

// validTransitions enumerates the allowed Status transitions. A connection
// starts in initializing, becomes ready on successful auth, and ends
// disconnected on any teardown path; disconnected is terminal.
var validTransitions = map[Status][]Status{
	StatusInitializing: {StatusReady, StatusDisconnected},
	StatusReady:         {StatusDisconnected},
	StatusDisconnected:  {},
}

// CanTransition reports whether from->to is an allowed Status transition.
func CanTransition(from, to Status) bool {
	for _, target := range validTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// TransitionError is returned by Connection.SetStatus on an invalid move.
type TransitionError struct {
	UserID string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("conn: invalid status transition %s -> %s (user %s)", e.From, e.To, e.UserID)
}

// Socket is the opaque send/close handle a Connection wraps. The hub's
// WebSocket layer provides the concrete implementation; everything else in
// this package only depends on this narrow interface, so unit tests can
// drive Connection logic without a real network socket.
type Socket interface {
	WriteJSON(v any) error
	Close(code int, reason string) error
}

// PendingResult is a tagged completed/failed RPC result cached for replay
// via the resume handler (§4.6).
type PendingResult struct {
	Completed bool
	Data      any
	Code      string
	Message   string
	UpdatedAt time.Time
}

// CompletedResult builds a successful PendingResult.
func CompletedResult(data any, at time.Time) PendingResult {
	return PendingResult{Completed: true, Data: data, UpdatedAt: at}
}

// FailedResult builds a failed PendingResult.
func FailedResult(code, message string, at time.Time) PendingResult {
	return PendingResult{Completed: false, Code: code, Message: message, UpdatedAt: at}
}

// Connection represents one live link from an execution plane (C3).
type Connection struct {
	UserID string
	OrgID  string
	Socket Socket

	mu              sync.Mutex
	status          Status
	lastHeartbeatAt time.Time
	activeSessions  map[string]struct{}
	pendingOrder    []string // request ids, oldest first
	pendingResults  map[string]PendingResult

	// writeMu serializes all writes to Socket — the wire protocol requires
	// at most one writer per connection at a time.
	writeMu sync.Mutex
}

// NewConnection constructs a provisional Connection in status initializing.
func NewConnection(userID string, socket Socket) *Connection {
	return &Connection{
		UserID:          userID,
		Socket:          socket,
		status:          StatusInitializing,
		lastHeartbeatAt: time.Now(),
		activeSessions:  make(map[string]struct{}),
		pendingResults:  make(map[string]PendingResult),
	}
}

// Status returns the current lifecycle status.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetStatus transitions the connection's status, enforcing the allowed
// transition graph; invalid transitions are rejected rather than applied.
func (c *Connection) SetStatus(to Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !CanTransition(c.status, to) {
		return &TransitionError{UserID: c.UserID, From: c.status, To: to}
	}
	c.status = to
	return nil
}

// IsReady reports whether outbound sends are currently permitted.
func (c *Connection) IsReady() bool {
	return c.Status() == StatusReady
}

// TouchHeartbeat advances lastHeartbeatAt to now, enforcing monotonic
// nondecrease (invariant b): an out-of-order or duplicate tick is a no-op.
func (c *Connection) TouchHeartbeat(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.After(c.lastHeartbeatAt) {
		c.lastHeartbeatAt = now
	}
}

// LastHeartbeatAt returns the last recorded heartbeat time.
func (c *Connection) LastHeartbeatAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeatAt
}

// ReplaceActiveSessions overwrites the set of sessions the execution plane
// claims to be running, as carried on a heartbeat frame.
func (c *Connection) ReplaceActiveSessions(sessionIDs []string) {
	next := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		next[id] = struct{}{}
	}
	c.mu.Lock()
	c.activeSessions = next
	c.mu.Unlock()
}

// ActiveSessions returns a snapshot of the active session id set.
func (c *Connection) ActiveSessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.activeSessions))
	for id := range c.activeSessions {
		out = append(out, id)
	}
	return out
}

// pendingResultCap and pendingResultEvictBatch are the bounds from §6.4.
// They are variables, not constants, so the hub can thread config-derived
// values through without every test needing to construct a full config.
var (
	pendingResultCap        = 200
	pendingResultEvictBatch = 50
)

// Configure sets the cache bound and eviction batch size used by every
// Connection's pendingResults cache. Called once at process startup from
// the loaded config.
func Configure(cap, evictBatch int) {
	pendingResultCap = cap
	pendingResultEvictBatch = evictBatch
}

// PutPendingResult caches result under requestID, evicting the oldest
// pendingResultEvictBatch entries if the cache would exceed
// pendingResultCap (invariant c).
func (c *Connection) PutPendingResult(requestID string, result PendingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pendingResults[requestID]; !exists {
		c.pendingOrder = append(c.pendingOrder, requestID)
	}
	c.pendingResults[requestID] = result

	if len(c.pendingResults) > pendingResultCap {
		evict := pendingResultEvictBatch
		if evict > len(c.pendingOrder) {
			evict = len(c.pendingOrder)
		}
		for _, id := range c.pendingOrder[:evict] {
			delete(c.pendingResults, id)
		}
		c.pendingOrder = c.pendingOrder[evict:]
	}
}

// GetPendingResult returns the cached result for requestID, if any.
func (c *Connection) GetPendingResult(requestID string) (PendingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.pendingResults[requestID]
	return r, ok
}

// Send writes payload to the underlying socket, refusing when the
// connection is absent or not ready (§4.3 outbound contract). Writes are
// serialized per connection.
func (c *Connection) Send(payload any) error {
	if !c.IsReady() {
		return ErrNotReady
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Socket.WriteJSON(payload)
}

// ErrNotReady is returned by Send when the connection isn't status=ready.
var ErrNotReady = fmt.Errorf("conn: connection not ready")

// ProcessBuffer is the bounded, per-session buffer of process-subset
// UIMessages (C7), truncated from the head on overflow.
type ProcessBuffer struct {
	mu   sync.Mutex
	cap  int
	msgs []normalize.UIMessage
}

// NewProcessBuffer constructs a buffer bounded at capacity.
func NewProcessBuffer(capacity int) *ProcessBuffer {
	return &ProcessBuffer{cap: capacity}
}

// Append adds msg if its type is in the process subset, truncating the
// oldest entries on overflow. Non-process types are ignored.
func (b *ProcessBuffer) Append(msg normalize.UIMessage) {
	if !normalize.IsProcessType(msg.Type) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	if len(b.msgs) > b.cap {
		overflow := len(b.msgs) - b.cap
		b.msgs = b.msgs[overflow:]
	}
}

// Snapshot returns a copy of the buffered messages in append order.
func (b *ProcessBuffer) Snapshot() []normalize.UIMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]normalize.UIMessage, len(b.msgs))
	copy(out, b.msgs)
	return out
}
