package vmhub

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
	"github.com/GoatGit/semibot-sub006/internal/conn"
	"github.com/GoatGit/semibot-sub006/internal/normalize"
)

// IngestDeps are the collaborators the Event Ingest path (C7) consumes.
type IngestDeps struct {
	Sessions collaborators.Sessions
}

var ingestDeps IngestDeps

// ConfigureIngest installs the collaborators used by C7.
func ConfigureIngest(deps IngestDeps) { ingestDeps = deps }

// handleSSEEvent implements §4.8 Event Ingest: parse, detect terminal
// events, persist durable artifacts, forward to the SSE relay, and maintain
// the session's ProcessBuffer.
func (h *Hub) handleSSEEvent(ctx context.Context, c *conn.Connection, frame InboundFrame) {
	sessionID, _ := frame.Raw["session_id"].(string)
	if sessionID == "" {
		return
	}

	rawData, ok := frame.Raw["data"]
	if !ok {
		slog.Warn("vmhub: sse_event missing data", "session_id", sessionID)
		return
	}

	ev, err := decodeRawEvent(rawData)
	if err != nil {
		slog.Warn("vmhub: sse_event unparseable", "session_id", sessionID, "error", err)
		return
	}

	switch {
	case normalize.IsError(ev):
		h.ingestError(sessionID, ev)
		return
	case normalize.IsComplete(ev):
		h.ingestComplete(ctx, c.OrgID, sessionID, ev)
		return
	}

	msg, ok := normalize.Normalize(ev)
	if !ok {
		return
	}

	if normalize.IsProcessType(msg.Type) {
		h.processBuffer(sessionID).Append(*msg)
	}

	if msg.Type == normalize.TypeFile {
		h.persistFileCard(ctx, c.OrgID, sessionID, *msg)
	}

	if h.deps.SSE != nil {
		h.deps.SSE.Forward(sessionID, "message", msg)
	}
}

func decodeRawEvent(data any) (normalize.RawEvent, error) {
	switch v := data.(type) {
	case string:
		var ev normalize.RawEvent
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case map[string]any:
		return normalize.RawEvent(v), nil
	default:
		return nil, errUnparseableEvent
	}
}

var errUnparseableEvent = &ingestError0{}

type ingestError0 struct{}

func (*ingestError0) Error() string { return "vmhub: sse_event data is neither a JSON string nor an object" }

func (h *Hub) ingestError(sessionID string, ev normalize.RawEvent) {
	h.deleteProcessBuffer(sessionID)

	code, _ := ev["code"].(string)
	if code == "" {
		code = "SSE_STREAM_ERROR"
	}
	message, _ := ev["error"].(string)
	if message == "" {
		message = "<execution failed>"
	}

	if h.deps.SSE != nil {
		h.deps.SSE.Forward(sessionID, "error", ErrorPayload{Code: code, Message: message})
		h.deps.SSE.CloseSession(sessionID)
	}
}

func (h *Hub) ingestComplete(ctx context.Context, orgID, sessionID string, ev normalize.RawEvent) {
	finalResponse, _ := ev["final_response"].(string)
	if finalResponse == "" {
		finalResponse, _ = ev["content"].(string)
	}

	buf := h.takeProcessBuffer(sessionID)

	messageID := uuid.New().String()
	if finalResponse != "" && ingestDeps.Sessions != nil {
		metadata := map[string]any{}
		if len(buf) > 0 {
			metadata["execution_process"] = map[string]any{
				"version":  1,
				"messages": buf,
			}
		}
		id, err := ingestDeps.Sessions.AddMessage(ctx, orgID, sessionID, collaborators.Message{
			Role:     "assistant",
			Content:  finalResponse,
			Metadata: metadata,
		})
		if err != nil {
			slog.Error("vmhub: persist final assistant message failed", "session_id", sessionID, "error", err)
		} else if id != "" {
			messageID = id
		}
	}

	if h.deps.SSE != nil {
		h.deps.SSE.Forward(sessionID, "execution_complete", map[string]string{
			"sessionId": sessionID,
			"messageId": messageID,
		})
		h.deps.SSE.CloseSession(sessionID)
	}
}

func (h *Hub) takeProcessBuffer(sessionID string) []normalize.UIMessage {
	h.mu.Lock()
	pb, ok := h.processBuffers[sessionID]
	delete(h.processBuffers, sessionID)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return pb.Snapshot()
}

func (h *Hub) persistFileCard(ctx context.Context, orgID, sessionID string, msg normalize.UIMessage) {
	if ingestDeps.Sessions == nil {
		return
	}
	_, err := ingestDeps.Sessions.AddMessage(ctx, orgID, sessionID, collaborators.Message{
		Role:    "assistant",
		Content: "",
		Metadata: map[string]any{
			"agent2ui": msg,
		},
	})
	if err != nil {
		slog.Error("vmhub: persist file card failed", "session_id", sessionID, "error", err)
	}
}
