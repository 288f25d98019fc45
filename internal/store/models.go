package store

import (
	"time"

	"github.com/uptrace/bun"
)

// SessionRow is the persisted shape of a session, joined by the gateway's
// request dispatcher against the owning agent.
type SessionRow struct {
	bun.BaseModel `bun:"table:sessions"`

	ID        string    `bun:"id,pk"`
	OrgID     string    `bun:"org_id,notnull"`
	AgentID   string    `bun:"agent_id,notnull"`
	Status    string    `bun:"status,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// AgentRow is the persisted shape of an agent configuration.
type AgentRow struct {
	bun.BaseModel `bun:"table:agents"`

	ID         string    `bun:"id,pk"`
	OrgID      string    `bun:"org_id,notnull"`
	Name       string    `bun:"name,notnull"`
	ConfigJSON string    `bun:"config_json,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// MessageRow is one persisted chat-history entry.
type MessageRow struct {
	bun.BaseModel `bun:"table:messages"`

	ID           string    `bun:"id,pk"`
	OrgID        string    `bun:"org_id,notnull"`
	SessionID    string    `bun:"session_id,notnull"`
	Role         string    `bun:"role,notnull"`
	Content      string    `bun:"content,notnull"`
	MetadataJSON string    `bun:"metadata_json,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// UsageCounterRow is one period rollup row written by Logs.RecordUsage.
type UsageCounterRow struct {
	bun.BaseModel `bun:"table:usage_counters"`

	ID            string    `bun:"id,pk"`
	OrgID         string    `bun:"org_id,notnull"`
	UserID        string    `bun:"user_id,notnull"`
	Period        string    `bun:"period,notnull"`
	PeriodStart   time.Time `bun:"period_start,notnull"`
	PeriodEnd     time.Time `bun:"period_end,notnull"`
	InputTokens   int64     `bun:"input_tokens,notnull"`
	OutputTokens  int64     `bun:"output_tokens,notnull"`
	ToolCalls     int64     `bun:"tool_calls,notnull"`
	APICalls      int64     `bun:"api_calls,notnull"`
	SessionsCount int64     `bun:"sessions_count,notnull"`
	MessagesCount int64     `bun:"messages_count,notnull"`
	CostUSD       float64   `bun:"cost_usd,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// AuditLogRow is one audit entry written by Logs.LogExecution.
type AuditLogRow struct {
	bun.BaseModel `bun:"table:audit_log"`

	ID         string    `bun:"id,pk"`
	OrgID      string    `bun:"org_id,notnull"`
	Source     string    `bun:"source,notnull"`
	SessionID  string    `bun:"session_id"`
	Action     string    `bun:"action"`
	DetailJSON string    `bun:"detail_json,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// EvolvedSkillRow is one submission written by EvolvedSkills.Create.
type EvolvedSkillRow struct {
	bun.BaseModel `bun:"table:evolved_skills"`

	ID           string    `bun:"id,pk"`
	OrgID        string    `bun:"org_id,notnull"`
	SkillID      string    `bun:"skill_id,notnull"`
	Name         string    `bun:"name,notnull"`
	Description  string    `bun:"description"`
	QualityScore float64   `bun:"quality_score,notnull"`
	Status       string    `bun:"status,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// MemoryRecordRow is one memory entry, optionally carrying a JSON-encoded
// embedding vector for cosine-similarity search.
type MemoryRecordRow struct {
	bun.BaseModel `bun:"table:memory_records"`

	ID            string     `bun:"id,pk"`
	OrgID         string     `bun:"org_id,notnull"`
	AgentID       string     `bun:"agent_id"`
	SessionID     string     `bun:"session_id"`
	Kind          string     `bun:"kind,notnull"`
	Content       string     `bun:"content,notnull"`
	EmbeddingJSON string     `bun:"embedding_json,notnull"`
	MetadataJSON  string     `bun:"metadata_json,notnull"`
	Importance    float64    `bun:"importance,notnull"`
	ExpiresAt     *time.Time `bun:"expires_at"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// SessionSnapshotRow points at a blob stored in the snapshot store; the row
// itself carries no payload.
type SessionSnapshotRow struct {
	bun.BaseModel `bun:"table:session_snapshots"`

	ID        string    `bun:"id,pk"`
	OrgID     string    `bun:"org_id,notnull"`
	SessionID string    `bun:"session_id,notnull"`
	BlobKey   string    `bun:"blob_key,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// SkillDefinitionRow maps a skill id to the definition id that owns it.
type SkillDefinitionRow struct {
	bun.BaseModel `bun:"table:skill_definitions"`

	SkillID      string `bun:"skill_id,pk"`
	DefinitionID string `bun:"definition_id,notnull"`
}

// SkillPackageRow maps a definition id to the package's root path, relative
// to the configured skill package root.
type SkillPackageRow struct {
	bun.BaseModel `bun:"table:skill_packages"`

	DefinitionID string `bun:"definition_id,pk"`
	RootPath     string `bun:"root_path,notnull"`
}
