package vmhub

import (
	"log/slog"

	"github.com/GoatGit/semibot-sub006/internal/conn"
)

// resumeResult is the per-id shape returned inside a resume_response frame.
type resumeResult struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *ErrorPayload  `json:"error,omitempty"`
}

// handleResume implements §4.6: replay the outcome of recent requests so a
// restarted execution plane can re-synchronize without re-executing
// side-effectful RPCs.
func (h *Hub) handleResume(c *conn.Connection, frame InboundFrame) {
	rawIDs, _ := frame.Raw["pending_ids"].([]any)

	results := make(map[string]resumeResult, len(rawIDs))
	for _, raw := range rawIDs {
		id, ok := raw.(string)
		if !ok {
			continue
		}
		result, found := c.GetPendingResult(id)
		if !found {
			results[id] = resumeResult{Status: "lost"}
			continue
		}
		if result.Completed {
			results[id] = resumeResult{Status: "completed", Data: result.Data}
		} else {
			results[id] = resumeResult{Status: "failed", Error: &ErrorPayload{Code: result.Code, Message: result.Message}}
		}
	}

	if err := c.Send(map[string]any{"type": FrameResumeResponse, "results": results}); err != nil {
		slog.Error("vmhub: send resume_response failed", "user_id", c.UserID, "error", err)
	}
}
