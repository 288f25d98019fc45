package vmhub

import (
	"context"
	"testing"
	"time"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

type recordedUsage struct {
	orgID, userID, period string
	counters               collaborators.UsageCounters
}

type fakeLogs struct {
	usage []recordedUsage
}

func (f *fakeLogs) RecordUsage(_ context.Context, orgID, userID, period string, _, _ time.Time, counters collaborators.UsageCounters) error {
	f.usage = append(f.usage, recordedUsage{orgID: orgID, userID: userID, period: period, counters: counters})
	return nil
}

func (f *fakeLogs) LogExecution(_ context.Context, _ string, _ collaborators.AuditEntry) error {
	return nil
}

func TestNormalizeMemoryType(t *testing.T) {
	cases := map[string]string{
		"long_term":   "semantic",
		"long-term":   "semantic",
		"  EPISODIC ": "episodic",
		"semantic":    "semantic",
		"procedural":  "procedural",
		"":            "episodic",
		"garbage":     "episodic",
	}
	for input, want := range cases {
		if got := normalizeMemoryType(input); got != want {
			t.Errorf("normalizeMemoryType(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFFMemoryWriteSkipsWhenMissingFields(t *testing.T) {
	store := &fakeMemoryStore{}
	fireForgetDeps = FireForgetDeps{MemoryStore: store}
	if err := ffMemoryWrite(context.Background(), "org1", "u1", map[string]any{"agent_id": "a1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("expected no insert without content, got %d", len(store.inserted))
	}
}

func TestFFMemoryWriteDemotesNonUUIDSessionID(t *testing.T) {
	store := &fakeMemoryStore{}
	fireForgetDeps = FireForgetDeps{MemoryStore: store}
	err := ffMemoryWrite(context.Background(), "org1", "u1", map[string]any{
		"agent_id":   "a1",
		"content":    "remember this",
		"session_id": "not-a-uuid",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.inserted))
	}
	rec := store.inserted[0]
	if rec.SessionID != "" {
		t.Fatalf("expected session id demoted to empty, got %q", rec.SessionID)
	}
	if rec.Metadata["runtime_session_id"] != "not-a-uuid" {
		t.Fatalf("expected runtime_session_id preserved in metadata, got %+v", rec.Metadata)
	}
}

func TestFFUsageReportRecordsUserIDAndCounters(t *testing.T) {
	logs := &fakeLogs{}
	fireForgetDeps = FireForgetDeps{Logs: logs}

	err := ffUsageReport(context.Background(), "org1", "u1", map[string]any{
		"tokens_input":  float64(12),
		"tokens_output": float64(34),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs.usage) != 1 {
		t.Fatalf("expected 1 recorded usage row, got %d", len(logs.usage))
	}
	got := logs.usage[0]
	if got.orgID != "org1" || got.userID != "u1" {
		t.Fatalf("expected orgID=org1 userID=u1, got orgID=%q userID=%q", got.orgID, got.userID)
	}
	if got.counters.InputTokens != 12 || got.counters.OutputTokens != 34 {
		t.Fatalf("unexpected token counters: %+v", got.counters)
	}
	if got.counters.APICalls != 1 || got.counters.SessionsCount != 1 || got.counters.MessagesCount != 1 {
		t.Fatalf("expected apiCalls/sessionsCount/messagesCount all 1, got %+v", got.counters)
	}
	if got.counters.CostUSD != 0 {
		t.Fatalf("expected costUsd 0, got %v", got.counters.CostUSD)
	}
}

type fakeEvolvedSkills struct {
	created []collaborators.EvolvedSkillRecord
}

func (f *fakeEvolvedSkills) Create(ctx context.Context, record collaborators.EvolvedSkillRecord) error {
	f.created = append(f.created, record)
	return nil
}

func TestFFEvolutionSubmitAutoApprovesHighQuality(t *testing.T) {
	skills := &fakeEvolvedSkills{}
	fireForgetDeps = FireForgetDeps{EvolvedSkills: skills}
	err := ffEvolutionSubmit(context.Background(), "org1", map[string]any{
		"skill_id": "sk1", "quality_score": 0.95,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skills.created[0].Status != "approved" {
		t.Fatalf("expected approved, got %q", skills.created[0].Status)
	}
}

func TestFFEvolutionSubmitPendingReviewForLowQuality(t *testing.T) {
	skills := &fakeEvolvedSkills{}
	fireForgetDeps = FireForgetDeps{EvolvedSkills: skills}
	err := ffEvolutionSubmit(context.Background(), "org1", map[string]any{
		"skill_id": "sk1", "quality_score": 0.4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skills.created[0].Status != "pending_review" {
		t.Fatalf("expected pending_review, got %q", skills.created[0].Status)
	}
}

