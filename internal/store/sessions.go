package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

// SessionsAdapter implements collaborators.Sessions over the session and
// message tables.
type SessionsAdapter struct {
	db *DB
}

// NewSessionsAdapter constructs a Sessions collaborator backed by db.
func NewSessionsAdapter(db *DB) *SessionsAdapter {
	return &SessionsAdapter{db: db}
}

func (a *SessionsAdapter) GetSession(ctx context.Context, orgID, sessionID string) (*collaborators.Session, error) {
	var row SessionRow
	err := a.db.bun.NewSelect().Model(&row).
		Where("id = ?", sessionID).
		Where("org_id = ?", orgID).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, collaborators.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return &collaborators.Session{
		ID:      row.ID,
		OrgID:   row.OrgID,
		AgentID: row.AgentID,
		Status:  row.Status,
	}, nil
}

func (a *SessionsAdapter) AddMessage(ctx context.Context, orgID, sessionID string, msg collaborators.Message) (string, error) {
	metaJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return "", fmt.Errorf("store: marshal message metadata: %w", err)
	}

	row := MessageRow{
		ID:           uuid.New().String(),
		OrgID:        orgID,
		SessionID:    sessionID,
		Role:         msg.Role,
		Content:      msg.Content,
		MetadataJSON: string(metaJSON),
	}
	if _, err := a.db.bun.NewInsert().Model(&row).Exec(ctx); err != nil {
		return "", fmt.Errorf("store: insert message: %w", err)
	}
	return row.ID, nil
}

// AgentsAdapter implements collaborators.Agents over the agents table.
type AgentsAdapter struct {
	db *DB
}

// NewAgentsAdapter constructs an Agents collaborator backed by db.
func NewAgentsAdapter(db *DB) *AgentsAdapter {
	return &AgentsAdapter{db: db}
}

func (a *AgentsAdapter) GetAgent(ctx context.Context, orgID, agentID string) (*collaborators.Agent, error) {
	var row AgentRow
	err := a.db.bun.NewSelect().Model(&row).
		Where("id = ?", agentID).
		Where("org_id = ?", orgID).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, collaborators.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get agent: %w", err)
	}

	var config map[string]any
	if row.ConfigJSON != "" {
		if err := json.Unmarshal([]byte(row.ConfigJSON), &config); err != nil {
			return nil, fmt.Errorf("store: unmarshal agent config: %w", err)
		}
	}

	return &collaborators.Agent{
		ID:     row.ID,
		OrgID:  row.OrgID,
		Name:   row.Name,
		Config: config,
	}, nil
}
