package wrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// LockFileName is the lock file's filename inside the subprojects dir.
const LockFileName = "juliabuild.lock"

// LockFileVersion is the format version this package reads and writes.
const LockFileVersion = 1

// Entry is one locked subproject. Which fields are populated depends
// on Type: git entries carry URL/Revision/Commit, file entries carry
// the Source* fields, hg and svn entries carry URL/Revision. The
// Patch* fields may appear on any type.
type Entry struct {
	Name      string `toml:"name"`
	Type      string `toml:"type"`
	Directory string `toml:"directory"`

	URL      string `toml:"url,omitempty"`
	Revision string `toml:"revision,omitempty"`
	// Commit is the resolved commit hash of a git checkout, as opposed
	// to Revision which is whatever the definition asked for
	// (branch, tag, or commit).
	Commit string `toml:"commit,omitempty"`

	SourceURL      string `toml:"source_url,omitempty"`
	SourceFilename string `toml:"source_filename,omitempty"`
	SourceHash     string `toml:"source_hash,omitempty"`

	PatchURL      string `toml:"patch_url,omitempty"`
	PatchFilename string `toml:"patch_filename,omitempty"`
	PatchHash     string `toml:"patch_hash,omitempty"`
}

// LockFile is the parsed lock file: a format version and the locked
// subprojects keyed by name.
type LockFile struct {
	Version     int
	Subprojects map[string]Entry
}

// NewLockFile returns an empty lock file at the current version.
func NewLockFile() *LockFile {
	return &LockFile{
		Version:     LockFileVersion,
		Subprojects: make(map[string]Entry),
	}
}

// lockFileDoc is the TOML shape of the file on disk. Version is a
// pointer so a missing key can be told apart from an explicit 0.
type lockFileDoc struct {
	Version     *int    `toml:"version"`
	Subprojects []Entry `toml:"subproject"`
}

// Load reads the lock file from subprojectsDir. A missing file is not
// an error; it returns (nil, nil) so callers can distinguish "no lock
// yet" from an empty lock.
func Load(subprojectsDir string) (*LockFile, error) {
	path := filepath.Join(subprojectsDir, LockFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lock file %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse decodes lock file content.
func Parse(content string) (*LockFile, error) {
	var doc lockFileDoc
	if _, err := toml.Decode(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode lock file: %w", err)
	}
	version := LockFileVersion
	if doc.Version != nil {
		version = *doc.Version
	}
	if version != LockFileVersion {
		return nil, fmt.Errorf("lock file version %d is not supported (expected %d)", version, LockFileVersion)
	}

	lf := NewLockFile()
	lf.Version = version
	for _, entry := range doc.Subprojects {
		if entry.Name == "" {
			return nil, fmt.Errorf("lock file entry without a name")
		}
		lf.Subprojects[entry.Name] = entry
	}
	return lf, nil
}

// Encode renders the lock file as TOML. Entries are written sorted by
// name with a fixed key order per type, so the output is byte-stable
// and diffs cleanly.
func (lf *LockFile) Encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "version = %d\n\n", lf.Version)

	names := make([]string, 0, len(lf.Subprojects))
	for name := range lf.Subprojects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := lf.Subprojects[name]
		b.WriteString("[[subproject]]\n")
		writeKey(&b, "name", name)
		writeKey(&b, "type", entry.Type)
		writeKey(&b, "directory", entry.Directory)

		switch entry.Type {
		case TypeGit:
			writeKey(&b, "url", entry.URL)
			writeKey(&b, "revision", entry.Revision)
			writeKey(&b, "commit", entry.Commit)
		case TypeFile:
			writeKey(&b, "source_url", entry.SourceURL)
			writeKey(&b, "source_filename", entry.SourceFilename)
			writeKey(&b, "source_hash", entry.SourceHash)
		case TypeHg, TypeSvn:
			writeKey(&b, "url", entry.URL)
			writeKey(&b, "revision", entry.Revision)
		}

		writeKey(&b, "patch_url", entry.PatchURL)
		writeKey(&b, "patch_filename", entry.PatchFilename)
		writeKey(&b, "patch_hash", entry.PatchHash)
		b.WriteString("\n")
	}
	return b.String()
}

func writeKey(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s = %q\n", key, value)
}

// Save writes the lock file into subprojectsDir.
func (lf *LockFile) Save(subprojectsDir string, logger *slog.Logger) error {
	path := filepath.Join(subprojectsDir, LockFileName)
	if err := os.WriteFile(path, []byte(lf.Encode()), 0644); err != nil {
		return fmt.Errorf("failed to write lock file %s: %w", path, err)
	}
	if logger != nil {
		logger.Info("lock file saved", slog.String("path", path))
	}
	return nil
}

// Add records or replaces the entry for a package definition. For git
// subprojects with an existing checkout under subprojectsDir, the
// currently checked out commit is resolved and pinned.
func (lf *LockFile) Add(ctx context.Context, def PackageDefinition, subprojectsDir string) {
	entry := Entry{
		Name:      def.Name,
		Type:      def.EffectiveType(),
		Directory: def.Directory,
	}

	switch entry.Type {
	case TypeGit:
		entry.URL = def.Values["url"]
		entry.Revision = def.Values["revision"]
		repoPath := filepath.Join(subprojectsDir, def.Directory)
		if _, err := os.Stat(filepath.Join(repoPath, ".git")); err == nil {
			if commit, err := gitHead(ctx, repoPath); err == nil {
				entry.Commit = commit
			}
		}
	case TypeFile:
		entry.SourceURL = def.Values["source_url"]
		entry.SourceFilename = def.Values["source_filename"]
		entry.SourceHash = def.Values["source_hash"]
	case TypeHg, TypeSvn:
		entry.URL = def.Values["url"]
		entry.Revision = def.Values["revision"]
	}

	entry.PatchURL = def.Values["patch_url"]
	entry.PatchFilename = def.Values["patch_filename"]
	entry.PatchHash = def.Values["patch_hash"]

	lf.Subprojects[def.Name] = entry
}

// Get returns the locked entry for name.
func (lf *LockFile) Get(name string) (Entry, bool) {
	entry, found := lf.Subprojects[name]
	return entry, found
}
