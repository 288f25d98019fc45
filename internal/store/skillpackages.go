package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SkillPackagesAdapter implements collaborators.SkillPackages over the
// skill_definitions and skill_packages tables.
type SkillPackagesAdapter struct {
	db *DB
}

// NewSkillPackagesAdapter constructs a SkillPackages collaborator backed by db.
func NewSkillPackagesAdapter(db *DB) *SkillPackagesAdapter {
	return &SkillPackagesAdapter{db: db}
}

func (a *SkillPackagesAdapter) FindDefinitionBySkillID(ctx context.Context, skillID string) (string, error) {
	var row SkillDefinitionRow
	err := a.db.bun.NewSelect().Model(&row).Where("skill_id = ?", skillID).Scan(ctx)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: find skill definition: %w", err)
	}
	return row.DefinitionID, nil
}

func (a *SkillPackagesAdapter) FindPackageByDefinition(ctx context.Context, defID string) (string, error) {
	var row SkillPackageRow
	err := a.db.bun.NewSelect().Model(&row).Where("definition_id = ?", defID).Scan(ctx)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: find skill package: %w", err)
	}
	return row.RootPath, nil
}
