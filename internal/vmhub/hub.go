package vmhub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
	"github.com/GoatGit/semibot-sub006/internal/conn"
	"github.com/GoatGit/semibot-sub006/internal/secretsenvelope"
	"github.com/GoatGit/semibot-sub006/internal/sse"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Deps are the collaborators the hub needs; each is a narrow interface from
// package collaborators, so the hub can be constructed against fakes in
// tests.
type Deps struct {
	Auth        collaborators.Auth
	VMInstances collaborators.VMInstanceRegistry
	Logs        collaborators.Logs
	SSE         *sse.Hub

	// ProcessBufferCap bounds each session's ProcessBuffer (§6.4).
	ProcessBufferCap int
	// MaxConnectionsPerOrg enforces OrgQuota (SPEC_FULL §3 NEW).
	MaxConnectionsPerOrg int
	// RuntimeConfig yields the LLM routing config sent on `init`.
	RuntimeConfig func(orgID string) map[string]any
	// ProviderSecrets yields the raw provider keys for a user, encrypted
	// under the §6.3 envelope before being sent on `init`.
	ProviderSecrets func(ctx context.Context, userID string) (map[string]string, error)
}

// Hub is the Connection Hub (C8), the process-wide supervisor of execution
// plane WebSocket connections.
type Hub struct {
	deps Deps

	mu             sync.RWMutex
	connections    map[string]*conn.Connection // keyed by userId
	orgCounts      map[string]int
	processBuffers map[string]*conn.ProcessBuffer // keyed by sessionId

	heartbeat *heartbeatSupervisor
}

var (
	instance   *Hub
	instanceMu sync.Mutex
)

// Init constructs the process-wide Hub singleton. Calling Init twice
// replaces the instance; callers are expected to call it exactly once at
// process start.
func Init(deps Deps) *Hub {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	h := &Hub{
		deps:           deps,
		connections:    make(map[string]*conn.Connection),
		orgCounts:      make(map[string]int),
		processBuffers: make(map[string]*conn.ProcessBuffer),
	}
	h.heartbeat = newHeartbeatSupervisor(h)
	instance = h
	return h
}

// Get returns the process-wide Hub singleton. Calling Get before Init is a
// programmer error and panics loudly, per the singleton discipline of §9.
func Get() *Hub {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		panic("vmhub: Get() called before Init()")
	}
	return instance
}

// Shutdown stops the heartbeat supervisor, closes every connection, and
// clears the connection map.
func (h *Hub) Shutdown() {
	h.heartbeat.stop()

	h.mu.Lock()
	conns := make([]*conn.Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.connections = make(map[string]*conn.Connection)
	h.orgCounts = make(map[string]int)
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Socket.Close(websocket.CloseNormalClosure, "gateway shutting down")
	}
}

// StartHeartbeatSupervisor begins the C4 periodic scan at the given
// interval/timeout bound. Call once after Init.
func (h *Hub) StartHeartbeatSupervisor(scanInterval, livenessBound time.Duration) {
	h.heartbeat.start(scanInterval, livenessBound)
}

// wsSocket adapts a *websocket.Conn to the narrow conn.Socket interface.
type wsSocket struct{ c *websocket.Conn }

func (w *wsSocket) WriteJSON(v any) error { return w.c.WriteJSON(v) }
func (w *wsSocket) Close(code int, reason string) error {
	_ = w.c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	return w.c.Close()
}

// ServeHTTP handles the `/ws/vm` upgrade: extracts user_id and an optional
// ticket from the query string, upgrades the socket, and runs the
// accept/handshake/dispatch loop for the connection's lifetime.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	ticket := r.URL.Query().Get("ticket")

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("vmhub: upgrade failed", "user_id", userID, "error", err)
		return
	}

	h.runConnection(r.Context(), userID, ticket, &wsSocket{c: wsConn}, wsConn)
}

// runConnection performs the handshake and then the dispatch loop. Split out
// from ServeHTTP so tests can drive it against a fake Socket plus a raw
// *websocket.Conn reader obtained via net.Pipe/httptest.
func (h *Hub) runConnection(ctx context.Context, userID, ticket string, sock conn.Socket, reader frameReader) {
	if userID == "" {
		slog.Warn("vmhub: missing user_id")
		_ = sock.Close(CloseAuthFailure, "missing user_id")
		return
	}

	c := conn.NewConnection(userID, sock)

	if h.deps.VMInstances != nil && ticket != "" {
		if err := h.deps.VMInstances.ConsumeTicket(ctx, userID, ticket); err != nil {
			slog.Warn("vmhub: ticket rejected", "user_id", userID, "error", err)
			_ = sock.Close(CloseAuthFailure, "invalid ticket")
			return
		}
	}

	var firstFrame InboundFrame
	if err := reader.ReadJSON(&firstFrame); err != nil || firstFrame.Type != FrameAuth {
		slog.Warn("vmhub: expected auth frame first", "user_id", userID)
		_ = sock.Close(CloseAuthFailure, "expected auth frame")
		return
	}

	identity, err := h.authenticate(ctx, firstFrame.Token)
	if err != nil {
		slog.Warn("vmhub: auth failed", "user_id", userID, "error", err)
		_ = sock.Close(CloseAuthFailure, "authentication failed")
		return
	}
	c.OrgID = identity.OrgID

	if h.deps.MaxConnectionsPerOrg > 0 && h.wouldExceedOrgQuota(userID, identity.OrgID) {
		slog.Warn("vmhub: org connection quota exceeded", "org_id", identity.OrgID)
		_ = sock.Close(CloseAuthFailure, "org connection quota exceeded")
		return
	}

	if err := c.SetStatus(conn.StatusReady); err != nil {
		slog.Error("vmhub: status transition failed", "user_id", userID, "error", err)
		_ = sock.Close(CloseAuthFailure, "internal error")
		return
	}

	h.insertSuperseding(c)

	if h.deps.VMInstances != nil {
		if err := h.deps.VMInstances.MarkReady(ctx, userID); err != nil {
			slog.Error("vmhub: mark ready failed", "user_id", userID, "error", err)
		}
	}
	if h.deps.Logs != nil {
		_ = h.deps.Logs.LogExecution(ctx, identity.OrgID, collaborators.AuditEntry{
			Source: "gateway",
			Action: "connect",
			Detail: map[string]any{"user_id": userID},
		})
	}

	if err := h.sendInit(ctx, c, firstFrame.Token); err != nil {
		slog.Error("vmhub: send init failed", "user_id", userID, "error", err)
	}

	h.dispatchLoop(ctx, c, reader)
}

// frameReader is the narrow reading side of a socket, separated from
// conn.Socket (the write/close side) so tests can supply a plain decoder.
type frameReader interface {
	ReadJSON(v any) error
}

func (h *Hub) authenticate(ctx context.Context, token string) (*collaborators.Identity, error) {
	if h.deps.Auth == nil {
		return nil, fmt.Errorf("vmhub: no auth collaborator configured")
	}
	return h.deps.Auth.Verify(ctx, token)
}

// insertSuperseding inserts c into the connections map, tearing down any
// prior connection for the same userId first (intentional supersession,
// §9 Open Question resolution).
func (h *Hub) insertSuperseding(c *conn.Connection) {
	h.mu.Lock()
	prior, existed := h.connections[c.UserID]
	h.connections[c.UserID] = c
	if !existed || prior.OrgID != c.OrgID {
		h.orgCounts[c.OrgID]++
		if existed {
			h.orgCounts[prior.OrgID]--
		}
	}
	h.mu.Unlock()

	if existed {
		h.teardownConnection(prior, websocket.CloseNormalClosure, "superseded by new connection")
	}
}

func (h *Hub) orgConnectionCount(orgID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.orgCounts[orgID]
}

// wouldExceedOrgQuota reports whether accepting a connection for userID in
// orgID would push orgID over MaxConnectionsPerOrg. A same-user reconnect
// into the org it's already counted under never exceeds the quota on its
// own: insertSuperseding tears down the prior connection for this user
// without any net change to orgCounts, so the stale connection must not be
// counted against the new one.
func (h *Hub) wouldExceedOrgQuota(userID, orgID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if prior, existed := h.connections[userID]; existed && prior.OrgID == orgID {
		return false
	}
	return h.orgCounts[orgID] >= h.deps.MaxConnectionsPerOrg
}

func (h *Hub) sendInit(ctx context.Context, c *conn.Connection, token string) error {
	payload := map[string]any{
		"userId": c.UserID,
		"orgId":  c.OrgID,
	}
	if h.deps.ProviderSecrets != nil {
		secrets, err := h.deps.ProviderSecrets(ctx, c.UserID)
		if err != nil {
			slog.Error("vmhub: fetch provider secrets failed", "user_id", c.UserID, "error", err)
		} else if len(secrets) > 0 {
			envs, err := secretsenvelope.SealAll(token, secrets)
			if err != nil {
				slog.Error("vmhub: seal provider secrets failed", "user_id", c.UserID, "error", err)
			} else {
				payload["apiKeys"] = envs
			}
		}
	}
	if h.deps.RuntimeConfig != nil {
		payload["llmConfig"] = h.deps.RuntimeConfig(c.OrgID)
	}
	return c.Send(OutboundFrame{Type: FrameInit, Payload: payload})
}

// dispatchLoop reads frames until the socket closes, routing each by type.
// Frames for a single connection are processed serially; concurrency across
// connections is unrestricted.
func (h *Hub) dispatchLoop(ctx context.Context, c *conn.Connection, reader frameReader) {
	defer h.teardownConnection(c, websocket.CloseNormalClosure, "socket closed")

	for {
		var raw map[string]any
		if err := reader.ReadJSON(&raw); err != nil {
			return
		}
		frame, err := decodeFrame(raw)
		if err != nil {
			slog.Warn("vmhub: malformed frame", "user_id", c.UserID, "error", err)
			continue
		}

		switch frame.Type {
		case FrameHeartbeat:
			h.handleHeartbeat(c, frame)
		case FrameRequest:
			h.handleRequest(ctx, c, frame)
		case FrameSSEEvent:
			h.handleSSEEvent(ctx, c, frame)
		case FrameFireAndForget:
			h.handleFireAndForget(ctx, c, frame)
		case FrameResume:
			h.handleResume(c, frame)
		default:
			// forward-compatible: ignore anything else
		}
	}
}

func decodeFrame(raw map[string]any) (InboundFrame, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return InboundFrame{}, err
	}
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return InboundFrame{}, err
	}
	f.Raw = raw
	return f, nil
}

func (h *Hub) handleHeartbeat(c *conn.Connection, frame InboundFrame) {
	c.TouchHeartbeat(time.Now())
	if h.deps.VMInstances != nil {
		_ = h.deps.VMInstances.TouchHeartbeat(context.Background(), c.UserID)
	}
	if frame.Sessions != nil {
		c.ReplaceActiveSessions(frame.Sessions)
	}
}

// teardownConnection marks the connection disconnected, closes its socket,
// reflects the state onto the VM-instance registry, and removes it from the
// map — but only if it is still the currently-mapped connection for its
// userId (a superseded connection has already been removed/replaced).
func (h *Hub) teardownConnection(c *conn.Connection, code int, reason string) {
	if c.Status() == conn.StatusDisconnected {
		return
	}
	_ = c.SetStatus(conn.StatusDisconnected)
	_ = c.Socket.Close(code, reason)

	if h.deps.VMInstances != nil {
		_ = h.deps.VMInstances.MarkDisconnected(context.Background(), c.UserID)
	}

	for _, sessionID := range c.ActiveSessions() {
		if h.deps.SSE != nil && h.deps.SSE.HasSubscribers(sessionID) {
			h.deps.SSE.Forward(sessionID, "error", ErrorPayload{
				Code:    "EXECUTION_PLANE_DISCONNECTED",
				Message: "execution plane disconnected",
			})
			h.deps.SSE.CloseSession(sessionID)
		}
		h.deleteProcessBuffer(sessionID)
	}

	h.mu.Lock()
	if h.connections[c.UserID] == c {
		delete(h.connections, c.UserID)
		h.orgCounts[c.OrgID]--
	}
	h.mu.Unlock()
}

func (h *Hub) processBuffer(sessionID string) *conn.ProcessBuffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	pb, ok := h.processBuffers[sessionID]
	if !ok {
		cap := h.deps.ProcessBufferCap
		if cap <= 0 {
			cap = 500
		}
		pb = conn.NewProcessBuffer(cap)
		h.processBuffers[sessionID] = pb
	}
	return pb
}

func (h *Hub) deleteProcessBuffer(sessionID string) {
	h.mu.Lock()
	delete(h.processBuffers, sessionID)
	h.mu.Unlock()
}

// --- Outbound public operations (§4.3 outbound contract) ---

// connectionFor looks up the live connection for userId.
func (h *Hub) connectionFor(userID string) (*conn.Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[userID]
	return c, ok
}

// StartSession instructs the execution plane to begin a session.
func (h *Hub) StartSession(userID, sessionID string, payload any) error {
	return h.send(userID, OutboundFrame{Type: FrameStartSession, SessionID: sessionID, Payload: payload})
}

// SendUserMessage forwards a user chat message to the execution plane.
func (h *Hub) SendUserMessage(userID, sessionID string, payload any) error {
	return h.send(userID, OutboundFrame{Type: FrameUserMessage, SessionID: sessionID, Payload: payload})
}

// SendCancel requests cancellation of a session, defaulting the reason to
// "user_cancelled" when none is supplied.
func (h *Hub) SendCancel(userID, sessionID, reason string) error {
	if reason == "" {
		reason = "user_cancelled"
	}
	return h.send(userID, OutboundFrame{Type: FrameCancel, SessionID: sessionID, Payload: map[string]string{"reason": reason}})
}

// SendConfigUpdate pushes a configuration change to one connection.
func (h *Hub) SendConfigUpdate(userID string, payload any) error {
	return h.send(userID, OutboundFrame{Type: FrameConfigUpdate, Payload: payload})
}

// BroadcastLLMConfigUpdate best-effort broadcasts an LLM routing config
// update to every ready connection; individual failures are logged and do
// not affect the others.
func (h *Hub) BroadcastLLMConfigUpdate(payload any) {
	h.mu.RLock()
	conns := make([]*conn.Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(OutboundFrame{Type: FrameConfigUpdate, Payload: payload}); err != nil {
			slog.Warn("vmhub: broadcast config update failed", "user_id", c.UserID, "error", err)
		}
	}
}

func (h *Hub) send(userID string, frame OutboundFrame) error {
	c, ok := h.connectionFor(userID)
	if !ok {
		return fmt.Errorf("vmhub: no connection for user %s: %w", userID, ErrConnectionAbsent)
	}
	return c.Send(frame)
}

// ErrConnectionAbsent is returned by outbound operations when no connection
// exists for the target userId.
var ErrConnectionAbsent = fmt.Errorf("vmhub: connection absent")
