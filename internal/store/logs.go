package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

// LogsAdapter implements collaborators.Logs over the usage_counters and
// audit_log tables.
type LogsAdapter struct {
	db *DB
}

// NewLogsAdapter constructs a Logs collaborator backed by db.
func NewLogsAdapter(db *DB) *LogsAdapter {
	return &LogsAdapter{db: db}
}

func (a *LogsAdapter) RecordUsage(ctx context.Context, orgID, userID, period string, start, end time.Time, counters collaborators.UsageCounters) error {
	row := UsageCounterRow{
		ID:            uuid.New().String(),
		OrgID:         orgID,
		UserID:        userID,
		Period:        period,
		PeriodStart:   start,
		PeriodEnd:     end,
		InputTokens:   counters.InputTokens,
		OutputTokens:  counters.OutputTokens,
		ToolCalls:     counters.ToolCalls,
		APICalls:      counters.APICalls,
		SessionsCount: counters.SessionsCount,
		MessagesCount: counters.MessagesCount,
		CostUSD:       counters.CostUSD,
	}
	if _, err := a.db.bun.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("store: record usage: %w", err)
	}
	return nil
}

func (a *LogsAdapter) LogExecution(ctx context.Context, orgID string, entry collaborators.AuditEntry) error {
	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("store: marshal audit detail: %w", err)
	}

	row := AuditLogRow{
		ID:         uuid.New().String(),
		OrgID:      orgID,
		Source:     entry.Source,
		SessionID:  entry.SessionID,
		Action:     entry.Action,
		DetailJSON: string(detailJSON),
	}
	if _, err := a.db.bun.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("store: log execution: %w", err)
	}
	return nil
}
