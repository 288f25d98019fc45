// Package collaborators declares the narrow interfaces the gateway core
// consumes for persistence, external tool invocation, and identity. The
// core never touches storage or schema directly: every side effect crosses
// one of these boundaries, so the request dispatcher, fire-and-forget
// dispatcher, and event ingest paths can be tested against fakes without a
// database, filesystem, or Kubernetes API server.
package collaborators

import (
	"context"
	"errors"
	"time"
)

// Common errors a collaborator implementation may return. The dispatchers
// translate these into the structured frame errors of §7; they never leak a
// driver-specific error type to the wire.
var (
	ErrNotFound      = errors.New("collaborators: not found")
	ErrUnauthorized  = errors.New("collaborators: unauthorized")
	ErrUnavailable   = errors.New("collaborators: unavailable")
	ErrInvalidTicket = errors.New("collaborators: ticket invalid or already consumed")
)

// Session is the minimal shape the gateway needs back from a session
// lookup; the store collaborator is free to hold richer fields.
type Session struct {
	ID     string
	OrgID  string
	AgentID string
	Status string
}

// Message is one persisted chat-history entry.
type Message struct {
	Role     string
	Content  string
	Metadata map[string]any
}

// Agent is the minimal shape the gateway needs back from an agent lookup.
type Agent struct {
	ID     string
	OrgID  string
	Name   string
	Config map[string]any
}

// UsageCounters is the per-period usage rollup recorded by Logs.RecordUsage.
type UsageCounters struct {
	InputTokens   int64
	OutputTokens  int64
	ToolCalls     int64
	APICalls      int64
	SessionsCount int64
	MessagesCount int64
	CostUSD       float64
}

// AuditEntry is one row written by Logs.LogExecution.
type AuditEntry struct {
	Source    string
	SessionID string
	Action    string
	Detail    map[string]any
}

// EvolvedSkillRecord is the payload accepted by EvolvedSkills.Create.
type EvolvedSkillRecord struct {
	OrgID        string
	SkillID      string
	Name         string
	Description  string
	QualityScore float64
	Status       string // "approved" or "pending_review"
}

// MemoryRecord is one row inserted by MemoryStore.Insert, optionally carrying
// an embedding vector for later cosine-similarity search.
type MemoryRecord struct {
	OrgID     string
	SessionID string
	Kind      string
	Content   string
	Embedding []float32
	Metadata  map[string]any
}

// MemoryMatch is one result of MemoryStore.Search.
type MemoryMatch struct {
	Record MemoryRecord
	Score  float64
}

// Identity is the result of a successful Auth.Verify.
type Identity struct {
	UserID string
	OrgID  string
}

// Sessions is the Sessions collaborator (§6.5).
type Sessions interface {
	GetSession(ctx context.Context, orgID, sessionID string) (*Session, error)
	AddMessage(ctx context.Context, orgID, sessionID string, msg Message) (id string, err error)
}

// Agents is the Agents collaborator.
type Agents interface {
	GetAgent(ctx context.Context, orgID, agentID string) (*Agent, error)
}

// MCP is the MCP collaborator: invokes a tool on a named MCP server.
type MCP interface {
	CallTool(ctx context.Context, server, orgID, tool string, arguments map[string]any) (any, error)
}

// Logs is the usage/audit collaborator.
type Logs interface {
	RecordUsage(ctx context.Context, orgID, userID, period string, start, end time.Time, counters UsageCounters) error
	LogExecution(ctx context.Context, orgID string, entry AuditEntry) error
}

// EvolvedSkills is the evolved-skill submission collaborator.
type EvolvedSkills interface {
	Create(ctx context.Context, record EvolvedSkillRecord) error
}

// SkillPackages is the filesystem-backed skill-package lookup collaborator.
type SkillPackages interface {
	FindDefinitionBySkillID(ctx context.Context, skillID string) (defID string, err error)
	FindPackageByDefinition(ctx context.Context, defID string) (rootPath string, err error)
}

// MemoryStore is the memory-write/search collaborator (§6.5, §4.8).
type MemoryStore interface {
	Insert(ctx context.Context, record MemoryRecord) error
	Search(ctx context.Context, orgID, query string, embedding []float32, topK int) ([]MemoryMatch, error)
}

// VMInstanceRegistry is the execution-plane lifecycle collaborator. It never
// provisions the instance — only reflects connection state onto it.
type VMInstanceRegistry interface {
	MarkReady(ctx context.Context, userID string) error
	MarkDisconnected(ctx context.Context, userID string) error
	TouchHeartbeat(ctx context.Context, userID string) error
	Exists(ctx context.Context, userID string) (bool, error)
	ConsumeTicket(ctx context.Context, userID, ticket string) error
}

// Auth is the bearer-token verification collaborator.
type Auth interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// EmbeddingProvider produces a vector embedding for a piece of text, or nil
// if no embedding could be produced (e.g. provider unavailable).
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
