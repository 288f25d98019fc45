package vmhub

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
	"github.com/GoatGit/semibot-sub006/internal/conn"
)

// FireForgetDeps are the collaborators the Fire-and-Forget Dispatcher (C6)
// consumes.
type FireForgetDeps struct {
	Sessions      collaborators.Sessions
	Logs          collaborators.Logs
	MemoryStore   collaborators.MemoryStore
	Embeddings    collaborators.EmbeddingProvider
	EvolvedSkills collaborators.EvolvedSkills
	SnapshotStore SnapshotStore
}

// SnapshotStore persists per-session snapshot rows and enforces retention.
type SnapshotStore interface {
	Save(ctx context.Context, orgID, sessionID string, snapshot map[string]any) error
	PruneOldest(ctx context.Context, sessionID string, keep int) error
}

var fireForgetDeps FireForgetDeps

// ConfigureFireForgetDispatcher installs the collaborators used by C6.
func ConfigureFireForgetDispatcher(deps FireForgetDeps) { fireForgetDeps = deps }

// snapshotRetention is the number of newest snapshots retained per session
// (§6.4, default 3); configurable at process startup.
var snapshotRetention = 3

// ConfigureSnapshotRetention overrides the default retention count.
func ConfigureSnapshotRetention(n int) { snapshotRetention = n }

func (h *Hub) handleFireAndForget(ctx context.Context, c *conn.Connection, frame InboundFrame) {
	sessionID, _ := frame.Raw["session_id"].(string)
	method := frame.Method
	params := frame.Params

	defer func() {
		if r := recover(); r != nil {
			slog.Error("vmhub: fire-and-forget handler panicked", "method", method, "panic", r)
		}
	}()

	var err error
	switch method {
	case "usage_report":
		err = ffUsageReport(ctx, c.OrgID, c.UserID, params)
	case "audit_log":
		err = ffAuditLog(ctx, c.OrgID, c.UserID, sessionID, params)
	case "snapshot_sync":
		err = ffSnapshotSync(ctx, c.OrgID, sessionID, params)
	case "memory_write":
		err = ffMemoryWrite(ctx, c.OrgID, c.UserID, params)
	case "evolution_submit":
		err = ffEvolutionSubmit(ctx, c.OrgID, params)
	default:
		slog.Warn("vmhub: unknown fire-and-forget method", "method", method)
		return
	}
	if err != nil {
		slog.Error("vmhub: fire-and-forget method failed", "method", method, "error", err)
	}
}

func ffUsageReport(ctx context.Context, orgID, userID string, params map[string]any) error {
	if fireForgetDeps.Logs == nil {
		return nil
	}
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.Add(24 * time.Hour)

	counters := collaborators.UsageCounters{
		InputTokens:   int64(intParam(params, "tokens_input", 0)),
		OutputTokens:  int64(intParam(params, "tokens_output", 0)),
		ToolCalls:     1,
		APICalls:      1,
		SessionsCount: 1,
		MessagesCount: 1,
		CostUSD:       0,
	}
	return fireForgetDeps.Logs.RecordUsage(ctx, orgID, userID, "daily", start, end, counters)
}

func ffAuditLog(ctx context.Context, orgID, userID, sessionID string, params map[string]any) error {
	if fireForgetDeps.Logs == nil {
		return nil
	}
	if fireForgetDeps.Sessions != nil && sessionID != "" {
		if _, err := fireForgetDeps.Sessions.GetSession(ctx, orgID, sessionID); err != nil {
			slog.Warn("vmhub: audit_log session lookup failed", "session_id", sessionID, "error", err)
		}
	}
	return fireForgetDeps.Logs.LogExecution(ctx, orgID, collaborators.AuditEntry{
		Source:    "execution_plane",
		SessionID: sessionID,
		Action:    stringParam(params, "action"),
		Detail:    map[string]any{"user_id": userID},
	})
}

func ffSnapshotSync(ctx context.Context, orgID, sessionID string, params map[string]any) error {
	if fireForgetDeps.SnapshotStore == nil {
		return nil
	}
	snapshot := map[string]any{
		"checkpoint":          params["checkpoint"],
		"short_term_memory":   params["short_term_memory"],
		"conversation_state":  params["conversation_state"],
		"file_manifest":       params["file_manifest"],
	}
	if err := fireForgetDeps.SnapshotStore.Save(ctx, orgID, sessionID, snapshot); err != nil {
		return err
	}
	return fireForgetDeps.SnapshotStore.PruneOldest(ctx, sessionID, snapshotRetention)
}

func ffMemoryWrite(ctx context.Context, orgID, userID string, params map[string]any) error {
	agentID := stringParam(params, "agent_id")
	content := stringParam(params, "content")
	if agentID == "" || content == "" {
		return nil
	}
	if fireForgetDeps.MemoryStore == nil {
		return nil
	}

	metadata, _ := params["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
	}

	sessionID := stringParam(params, "session_id")
	if sessionID != "" {
		if _, err := uuid.Parse(sessionID); err != nil {
			metadata["runtime_session_id"] = sessionID
			sessionID = ""
		}
	}

	var embedding []float32
	if fireForgetDeps.Embeddings != nil {
		vec, err := fireForgetDeps.Embeddings.Embed(ctx, content)
		if err != nil {
			slog.Warn("vmhub: memory_write embed failed", "error", err)
		} else {
			embedding = vec
		}
	}

	record := collaborators.MemoryRecord{
		OrgID:     orgID,
		SessionID: sessionID,
		Kind:      normalizeMemoryType(stringParam(params, "memory_type")),
		Content:   content,
		Embedding: embedding,
		Metadata:  metadata,
	}
	return fireForgetDeps.MemoryStore.Insert(ctx, record)
}

// normalizeMemoryType implements the §4.8 memory-type normalization rule.
func normalizeMemoryType(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "long_term", "long-term":
		return "semantic"
	case "episodic", "semantic", "procedural":
		return v
	default:
		return "episodic"
	}
}

func ffEvolutionSubmit(ctx context.Context, orgID string, params map[string]any) error {
	if fireForgetDeps.EvolvedSkills == nil {
		return nil
	}
	qualityScore, _ := params["quality_score"].(float64)
	status := "pending_review"
	if qualityScore >= 0.8 {
		status = "approved"
	}
	return fireForgetDeps.EvolvedSkills.Create(ctx, collaborators.EvolvedSkillRecord{
		OrgID:        orgID,
		SkillID:      stringParam(params, "skill_id"),
		Name:         stringParam(params, "name"),
		Description:  stringParam(params, "description"),
		QualityScore: qualityScore,
		Status:       status,
	})
}
