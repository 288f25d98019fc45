package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "gateway-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	database, err := Open("sqlite", tmpFile.Name())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database
}

func TestOpenRunsMigrations(t *testing.T) {
	db := setupTestDB(t)
	var count int
	if err := db.bun.NewSelect().Model((*SessionRow)(nil)).ColumnExpr("count(*)").Scan(context.Background(), &count); err != nil {
		t.Fatalf("sessions table not created by migrations: %v", err)
	}
}

func TestSessionsAdapterGetSessionNotFound(t *testing.T) {
	db := setupTestDB(t)
	adapter := NewSessionsAdapter(db)

	_, err := adapter.GetSession(context.Background(), "org-1", "missing")
	if err != collaborators.ErrNotFound {
		t.Fatalf("GetSession() error = %v, want ErrNotFound", err)
	}
}

func TestSessionsAdapterAddMessageAndGetSession(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.bun.NewInsert().Model(&SessionRow{
		ID: "sess-1", OrgID: "org-1", AgentID: "agent-1", Status: "active",
	}).Exec(context.Background()); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	adapter := NewSessionsAdapter(db)
	got, err := adapter.GetSession(context.Background(), "org-1", "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.AgentID != "agent-1" {
		t.Errorf("GetSession() agent = %q, want agent-1", got.AgentID)
	}

	id, err := adapter.AddMessage(context.Background(), "org-1", "sess-1", collaborators.Message{
		Role: "assistant", Content: "hello", Metadata: map[string]any{"k": "v"},
	})
	if err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	if id == "" {
		t.Error("AddMessage() returned empty id")
	}
}

func TestAgentsAdapterGetAgentDecodesConfig(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.bun.NewInsert().Model(&AgentRow{
		ID: "agent-1", OrgID: "org-1", Name: "pilot", ConfigJSON: `{"model":"x"}`,
	}).Exec(context.Background()); err != nil {
		t.Fatalf("seed agent: %v", err)
	}

	adapter := NewAgentsAdapter(db)
	got, err := adapter.GetAgent(context.Background(), "org-1", "agent-1")
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if got.Config["model"] != "x" {
		t.Errorf("GetAgent() config[model] = %v, want x", got.Config["model"])
	}
}

func TestLogsAdapterRecordUsageAndLogExecution(t *testing.T) {
	db := setupTestDB(t)
	adapter := NewLogsAdapter(db)
	ctx := context.Background()

	start := mustParseDate(t, "2026-07-30")
	end := mustParseDate(t, "2026-07-31")
	if err := adapter.RecordUsage(ctx, "org-1", "user-1", "daily", start, end, collaborators.UsageCounters{InputTokens: 10}); err != nil {
		t.Fatalf("RecordUsage() error = %v", err)
	}
	if err := adapter.LogExecution(ctx, "org-1", collaborators.AuditEntry{Source: "gateway", Action: "connect"}); err != nil {
		t.Fatalf("LogExecution() error = %v", err)
	}
}

func TestEvolvedSkillsAdapterCreate(t *testing.T) {
	db := setupTestDB(t)
	adapter := NewEvolvedSkillsAdapter(db)
	err := adapter.Create(context.Background(), collaborators.EvolvedSkillRecord{
		OrgID: "org-1", SkillID: "skill-1", Name: "n", QualityScore: 0.9, Status: "approved",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestSkillPackagesAdapterResolvesPath(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	if _, err := db.bun.NewInsert().Model(&SkillDefinitionRow{SkillID: "skill-1", DefinitionID: "def-1"}).Exec(ctx); err != nil {
		t.Fatalf("seed definition: %v", err)
	}
	if _, err := db.bun.NewInsert().Model(&SkillPackageRow{DefinitionID: "def-1", RootPath: "def-1"}).Exec(ctx); err != nil {
		t.Fatalf("seed package: %v", err)
	}

	adapter := NewSkillPackagesAdapter(db)
	defID, err := adapter.FindDefinitionBySkillID(ctx, "skill-1")
	if err != nil || defID != "def-1" {
		t.Fatalf("FindDefinitionBySkillID() = (%q, %v), want def-1", defID, err)
	}
	path, err := adapter.FindPackageByDefinition(ctx, "def-1")
	if err != nil || path != "def-1" {
		t.Fatalf("FindPackageByDefinition() = (%q, %v), want def-1", path, err)
	}
}

func TestSkillPackagesAdapterMissingSkillReturnsEmpty(t *testing.T) {
	db := setupTestDB(t)
	adapter := NewSkillPackagesAdapter(db)
	defID, err := adapter.FindDefinitionBySkillID(context.Background(), "missing")
	if err != nil || defID != "" {
		t.Fatalf("FindDefinitionBySkillID() = (%q, %v), want empty/nil", defID, err)
	}
}

func TestMemoryAdapterInsertAndSearchBySubstring(t *testing.T) {
	db := setupTestDB(t)
	adapter := NewMemoryAdapter(db)
	ctx := context.Background()

	if err := adapter.Insert(ctx, collaborators.MemoryRecord{
		OrgID: "org-1", Kind: "episodic", Content: "deploy the service with canary rollout",
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := adapter.Insert(ctx, collaborators.MemoryRecord{
		OrgID: "org-1", Kind: "episodic", Content: "unrelated note about lunch",
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	matches, err := adapter.Search(ctx, "org-1", "deploy", nil, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Search() returned %d matches, want 1", len(matches))
	}
}

func TestMemoryAdapterSearchScopedByOrg(t *testing.T) {
	db := setupTestDB(t)
	adapter := NewMemoryAdapter(db)
	ctx := context.Background()

	if err := adapter.Insert(ctx, collaborators.MemoryRecord{OrgID: "org-a", Kind: "episodic", Content: "deploy"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	matches, err := adapter.Search(ctx, "org-b", "deploy", nil, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("Search() returned %d matches for other org, want 0", len(matches))
	}
}

func mustParseDate(t *testing.T, date string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		t.Fatalf("parse date %q: %v", date, err)
	}
	return parsed
}
