// Package sse implements the session-scoped Server-Sent-Events relay: a
// registry of browser/API subscribers per sessionId, with best-effort,
// at-most-once fan-out and bounded writes so one slow subscriber can never
// stall the execution-plane event stream.
package sse

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// writeBound caps how long Forward will wait on a single
// subscriber's channel before declaring it slow and dropping it.
const writeBound = 250 * time.Millisecond

// subscriberBufSize is the per-subscriber outbound channel buffer.
const subscriberBufSize = 32

// Event is one SSE frame: an event name and its JSON-encoded payload.
type Event struct {
	Name string
	Data []byte
}

// Subscriber is a single registered SSE consumer for one session.
type Subscriber struct {
	sessionID string
	ch        chan Event

	mu     sync.Mutex
	active bool
}

// Events returns the channel the HTTP handler should range over to write
// frames to the underlying response. The channel is closed exactly once,
// when the subscriber is removed (by forward-failure or closeSession).
func (s *Subscriber) Events() <-chan Event { return s.ch }

func (s *Subscriber) markInactive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.ch)
}

func (s *Subscriber) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Hub is the process-wide SSE relay (C2). Ownership is exclusive: only the
// Hub mutates subscriber sets, keyed by sessionId.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscriber]struct{}
}

// NewHub constructs an empty relay.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscriber]struct{})}
}

// Register adds a new subscriber to sessionId's set and returns a handle the
// caller uses to read frames and to deregister on client disconnect.
func (h *Hub) Register(sessionID string) *Subscriber {
	sub := &Subscriber{
		sessionID: sessionID,
		ch:        make(chan Event, subscriberBufSize),
		active:    true,
	}
	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Deregister removes sub from its session's set, for client-initiated
// disconnects that are not accompanied by a terminal event.
func (h *Hub) Deregister(sub *Subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[sub.sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.sessionID)
		}
	}
	h.mu.Unlock()
	sub.markInactive()
}

// Forward is a best-effort write of (eventName, payload) to every active
// subscriber of sessionId. A subscriber whose channel is full past
// writeBound is considered slow, marked inactive, and removed — it is
// dropped rather than allowed to stall the caller.
func (h *Hub) Forward(sessionID, eventName string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("sse: failed to marshal event", "session_id", sessionID, "error", err)
		return
	}
	evt := Event{Name: eventName, Data: data}

	h.mu.RLock()
	set := h.subs[sessionID]
	snapshot := make([]*Subscriber, 0, len(set))
	for sub := range set {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	var dead []*Subscriber
	for _, sub := range snapshot {
		if !sub.isActive() {
			continue
		}
		select {
		case sub.ch <- evt:
		case <-time.After(writeBound):
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		h.Deregister(sub)
	}
}

// CloseSession closes and deregisters every subscriber of sessionId. Called
// once a terminal event (execution_complete/error) has been forwarded.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	set := h.subs[sessionID]
	delete(h.subs, sessionID)
	h.mu.Unlock()

	for sub := range set {
		sub.markInactive()
	}
}

// HasSubscribers reports whether sessionId currently has at least one
// registered subscriber, active or not yet pruned.
func (h *Hub) HasSubscribers(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID]) > 0
}
