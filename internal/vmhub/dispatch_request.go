package vmhub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
	"github.com/GoatGit/semibot-sub006/internal/conn"
)

// RequestDeps are the collaborators the Request Dispatcher (C5) consumes.
// Kept separate from Deps so the dispatcher can be unit tested with a
// minimal fake set.
type RequestDeps struct {
	Sessions      collaborators.Sessions
	Agents        collaborators.Agents
	MCP           collaborators.MCP
	MemoryStore   collaborators.MemoryStore
	Embeddings    collaborators.EmbeddingProvider
	SkillPackages SkillPackageLoader
	TopKMin       int
	TopKMax       int
}

var requestDeps RequestDeps

// ConfigureRequestDispatcher installs the collaborators used by C5. Called
// once at process startup.
func ConfigureRequestDispatcher(deps RequestDeps) { requestDeps = deps }

func (h *Hub) handleRequest(ctx context.Context, c *conn.Connection, frame InboundFrame) {
	id := frame.ID
	sessionID, _ := frame.Raw["session_id"].(string)
	params := frame.Params

	result, rpcErr := dispatchMethod(ctx, c.OrgID, frame.Method, sessionID, params)

	now := time.Now()
	if rpcErr != nil {
		c.PutPendingResult(id, conn.FailedResult(rpcErr.Code, rpcErr.Message, now))
	} else {
		c.PutPendingResult(id, conn.CompletedResult(result, now))
	}

	resp := map[string]any{"type": FrameResponse, "id": id, "result": nil, "error": nil}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	if err := c.Send(resp); err != nil {
		slog.Error("vmhub: send response failed", "user_id", c.UserID, "request_id", id, "error", err)
	}
}

func dispatchMethod(ctx context.Context, orgID, method, sessionID string, params map[string]any) (any, *ErrorPayload) {
	switch method {
	case "get_session":
		return requestGetSession(ctx, orgID, sessionID, params)
	case "get_config":
		return requestGetConfig(ctx, orgID, params)
	case "mcp_call":
		return requestMCPCall(ctx, orgID, params)
	case "memory_search":
		return requestMemorySearch(ctx, orgID, params)
	case "get_skill_package":
		return requestGetSkillPackage(ctx, params)
	default:
		return nil, &ErrorPayload{Code: "UNSUPPORTED_METHOD", Message: fmt.Sprintf("unsupported method %q", method)}
	}
}

func requestFailed(err error) *ErrorPayload {
	return &ErrorPayload{Code: "REQUEST_FAILED", Message: err.Error()}
}

func requestGetSession(ctx context.Context, orgID, sessionID string, params map[string]any) (any, *ErrorPayload) {
	if id, ok := params["session_id"].(string); ok && id != "" {
		sessionID = id
	}
	if requestDeps.Sessions == nil {
		return nil, &ErrorPayload{Code: "REQUEST_FAILED", Message: "sessions collaborator unavailable"}
	}
	session, err := requestDeps.Sessions.GetSession(ctx, orgID, sessionID)
	if err != nil {
		return nil, requestFailed(err)
	}
	var agent *collaborators.Agent
	if session != nil && requestDeps.Agents != nil {
		agent, _ = requestDeps.Agents.GetAgent(ctx, orgID, session.AgentID)
	}
	return map[string]any{"session": session, "agent": agent}, nil
}

func requestGetConfig(ctx context.Context, orgID string, params map[string]any) (any, *ErrorPayload) {
	agentID, _ := params["agent_id"].(string)
	if requestDeps.Agents == nil {
		return nil, &ErrorPayload{Code: "REQUEST_FAILED", Message: "agents collaborator unavailable"}
	}
	agent, err := requestDeps.Agents.GetAgent(ctx, orgID, agentID)
	if err != nil {
		return nil, requestFailed(err)
	}
	return map[string]any{"agent": agent}, nil
}

func requestMCPCall(ctx context.Context, orgID string, params map[string]any) (any, *ErrorPayload) {
	server, _ := params["server"].(string)
	tool, _ := params["tool"].(string)
	arguments, _ := params["arguments"].(map[string]any)
	if requestDeps.MCP == nil {
		return nil, &ErrorPayload{Code: "REQUEST_FAILED", Message: "mcp collaborator unavailable"}
	}
	result, err := requestDeps.MCP.CallTool(ctx, server, orgID, tool, arguments)
	if err != nil {
		return nil, requestFailed(err)
	}
	return result, nil
}

func requestMemorySearch(ctx context.Context, orgID string, params map[string]any) (any, *ErrorPayload) {
	query := strings.TrimSpace(stringParam(params, "query"))
	topK := clampTopK(intParam(params, "top_k", 10))

	if query == "" {
		return map[string]any{"results": []any{}}, nil
	}

	if requestDeps.MemoryStore == nil {
		return nil, &ErrorPayload{Code: "REQUEST_FAILED", Message: "memory store collaborator unavailable"}
	}

	var embedding []float32
	if requestDeps.Embeddings != nil {
		vec, err := requestDeps.Embeddings.Embed(ctx, query)
		if err != nil {
			slog.Warn("vmhub: embed query failed, falling back to substring search", "error", err)
		} else {
			embedding = vec
		}
	}

	matches, err := requestDeps.MemoryStore.Search(ctx, orgID, query, embedding, topK)
	if err != nil {
		return nil, requestFailed(err)
	}

	results := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		results = append(results, map[string]any{
			"content":  m.Record.Content,
			"score":    m.Score,
			"metadata": m.Record.Metadata,
		})
	}
	return map[string]any{"results": results}, nil
}

func requestGetSkillPackage(ctx context.Context, params map[string]any) (any, *ErrorPayload) {
	skillID := stringParam(params, "skill_id")
	if requestDeps.SkillPackages == nil {
		return map[string]any{"package": nil}, nil
	}
	pkg, err := requestDeps.SkillPackages.Load(ctx, skillID)
	if err != nil || pkg == nil {
		return map[string]any{"package": nil}, nil
	}
	return map[string]any{"package": pkg}, nil
}

func clampTopK(k int) int {
	min, max := requestDeps.TopKMin, requestDeps.TopKMax
	if min == 0 && max == 0 {
		min, max = 1, 20
	}
	if k < min {
		return min
	}
	if k > max {
		return max
	}
	return k
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
