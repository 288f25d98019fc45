package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

// EvolvedSkillsAdapter implements collaborators.EvolvedSkills over the
// evolved_skills table.
type EvolvedSkillsAdapter struct {
	db *DB
}

// NewEvolvedSkillsAdapter constructs an EvolvedSkills collaborator backed by db.
func NewEvolvedSkillsAdapter(db *DB) *EvolvedSkillsAdapter {
	return &EvolvedSkillsAdapter{db: db}
}

func (a *EvolvedSkillsAdapter) Create(ctx context.Context, record collaborators.EvolvedSkillRecord) error {
	row := EvolvedSkillRow{
		ID:           uuid.New().String(),
		OrgID:        record.OrgID,
		SkillID:      record.SkillID,
		Name:         record.Name,
		Description:  record.Description,
		QualityScore: record.QualityScore,
		Status:       record.Status,
	}
	if _, err := a.db.bun.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("store: create evolved skill: %w", err)
	}
	return nil
}
