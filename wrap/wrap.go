// Package wrap tracks subproject dependencies and pins them in a
// lock file so rebuilds resolve the same sources.
package wrap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Subproject types a package definition can declare.
const (
	TypeGit  = "git"
	TypeFile = "file"
	TypeHg   = "hg"
	TypeSvn  = "svn"
)

// PackageDefinition describes a subproject as declared by its wrap
// definition: how to fetch it and where it unpacks.
type PackageDefinition struct {
	Name string
	// Type is one of TypeGit, TypeFile, TypeHg, TypeSvn. Empty means
	// TypeFile.
	Type string
	// Directory is the subdirectory the subproject unpacks into,
	// relative to the subprojects dir.
	Directory string
	// Values holds the type-specific keys of the definition (url,
	// revision, source_hash, patch_url, ...).
	Values map[string]string
}

// EffectiveType returns the declared type, defaulting to TypeFile.
func (d PackageDefinition) EffectiveType() string {
	if d.Type == "" {
		return TypeFile
	}
	return d.Type
}

// gitHead returns the commit hash of HEAD in repoPath. Errors are
// returned rather than logged; callers treat a failure as "no
// resolved commit" and continue.
func gitHead(ctx context.Context, repoPath string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = repoPath
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// FindSubprojectsDir searches upward from startPath for a
// "subprojects" directory, the same way module roots are found by
// walking toward the filesystem root.
func FindSubprojectsDir(startPath string) (string, error) {
	dir, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", startPath, err)
	}
	for {
		candidate := filepath.Join(dir, "subprojects")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no subprojects directory found in or above %s", startPath)
		}
		dir = parent
	}
}
