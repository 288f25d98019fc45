package vmhub

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

// skillFile is one file entry in a SkillPackage's files list (§6.6).
type skillFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// skillFileInventory summarizes which skill-package pieces were present.
type skillFileInventory struct {
	HasSkillMD      bool     `json:"has_skill_md"`
	HasScripts      bool     `json:"has_scripts"`
	HasReferences   bool     `json:"has_references"`
	ScriptFiles     []string `json:"script_files"`
	ReferenceFiles  []string `json:"reference_files"`
}

// SkillPackage is the shape returned by `get_skill_package` (§6.6).
type SkillPackage struct {
	SkillID       string              `json:"skill_id"`
	Version       string              `json:"version"`
	Files         []skillFile         `json:"files"`
	FileInventory skillFileInventory  `json:"file_inventory"`
}

// SkillPackageLoader resolves a skill id to its on-disk package contents.
type SkillPackageLoader interface {
	Load(ctx context.Context, skillID string) (*SkillPackage, error)
}

// fsSkillPackageLoader implements SkillPackageLoader over os.DirFS, reading
// a fixed top-level file set plus the first 20 entries of two
// subdirectories, non-recursively, matching §6.6.
type fsSkillPackageLoader struct {
	skillPackages collaborators.SkillPackages
	root          string
}

// NewFSSkillPackageLoader constructs a loader rooted at root (a directory
// containing one subdirectory per skill-package definition id).
func NewFSSkillPackageLoader(skillPackages collaborators.SkillPackages, root string) SkillPackageLoader {
	return &fsSkillPackageLoader{skillPackages: skillPackages, root: root}
}

const maxListedEntries = 20

func (l *fsSkillPackageLoader) Load(ctx context.Context, skillID string) (*SkillPackage, error) {
	if skillID == "" || l.skillPackages == nil {
		return nil, nil
	}
	defID, err := l.skillPackages.FindDefinitionBySkillID(ctx, skillID)
	if err != nil || defID == "" {
		return nil, nil
	}
	relPath, err := l.skillPackages.FindPackageByDefinition(ctx, defID)
	if err != nil || relPath == "" {
		return nil, nil
	}

	dir := filepath.Join(l.root, relPath)
	dirFS := os.DirFS(dir)

	var files []skillFile
	inv := skillFileInventory{}

	for _, name := range []string{"SKILL.md", "REFERENCE.md", "manifest.json"} {
		content, err := fs.ReadFile(dirFS, name)
		if err != nil {
			continue
		}
		if name == "SKILL.md" {
			inv.HasSkillMD = true
		}
		files = append(files, skillFile{Path: name, Content: string(content), Encoding: "utf-8"})
	}

	scripts, scriptNames := listSubdir(dirFS, "scripts")
	if len(scriptNames) > 0 {
		inv.HasScripts = true
		inv.ScriptFiles = scriptNames
		files = append(files, scripts...)
	}
	refs, refNames := listSubdir(dirFS, "references")
	if len(refNames) > 0 {
		inv.HasReferences = true
		inv.ReferenceFiles = refNames
		files = append(files, refs...)
	}

	return &SkillPackage{
		SkillID:       skillID,
		Version:       "current",
		Files:         files,
		FileInventory: inv,
	}, nil
}

func listSubdir(dirFS fs.FS, subdir string) ([]skillFile, []string) {
	entries, err := fs.ReadDir(dirFS, subdir)
	if err != nil {
		return nil, nil
	}
	var files []skillFile
	var names []string
	for i, e := range entries {
		if i >= maxListedEntries {
			break
		}
		if e.IsDir() {
			continue
		}
		path := fmt.Sprintf("%s/%s", subdir, e.Name())
		content, err := fs.ReadFile(dirFS, path)
		if err != nil {
			continue
		}
		files = append(files, skillFile{Path: path, Content: string(content), Encoding: "utf-8"})
		names = append(names, e.Name())
	}
	return files, names
}
