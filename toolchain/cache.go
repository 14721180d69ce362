package toolchain

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DetectionCache persists compiler detection results between runs so
// repeated builds skip the `--version` probe. Entries are keyed by
// machine and invalidated when the executable changes on disk.
type DetectionCache struct {
	mu       sync.RWMutex
	entries  map[string]cacheEntry
	filePath string
	enabled  bool
	logger   *slog.Logger
}

type cacheEntry struct {
	Path        string `json:"path"`
	Version     string `json:"version"`
	FullVersion string `json:"full_version"`
	ModTime     int64  `json:"mtime"`
}

// NewDetectionCache creates a cache backed by filePath. An empty
// filePath disables caching; all operations become no-ops.
func NewDetectionCache(filePath string) *DetectionCache {
	return &DetectionCache{
		entries:  make(map[string]cacheEntry),
		filePath: filePath,
		enabled:  filePath != "",
		logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

// SetLogger attaches the logger used for cache warnings.
func (dc *DetectionCache) SetLogger(logger *slog.Logger) {
	dc.logger = logger
}

// Load reads the cache file. A missing file is not an error; the cache
// starts empty. A corrupt file is discarded with a warning.
func (dc *DetectionCache) Load() error {
	if !dc.enabled {
		return nil
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	data, err := os.ReadFile(dc.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			dc.entries = make(map[string]cacheEntry)
			return nil
		}
		return fmt.Errorf("failed to read detection cache %s: %w", dc.filePath, err)
	}
	if len(data) == 0 {
		dc.entries = make(map[string]cacheEntry)
		return nil
	}
	if err := json.Unmarshal(data, &dc.entries); err != nil {
		dc.logger.Warn("discarding corrupt detection cache", slog.String("path", dc.filePath), slog.Any("error", err))
		dc.entries = make(map[string]cacheEntry)
	}
	return nil
}

// Save writes the cache file, creating its directory if needed.
func (dc *DetectionCache) Save() error {
	if !dc.enabled {
		return nil
	}

	dc.mu.RLock()
	snapshot := make(map[string]cacheEntry, len(dc.entries))
	for k, v := range dc.entries {
		snapshot[k] = v
	}
	dc.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal detection cache: %w", err)
	}
	dir := filepath.Dir(dc.filePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	if err := os.WriteFile(dc.filePath, data, 0640); err != nil {
		return fmt.Errorf("failed to write detection cache %s: %w", dc.filePath, err)
	}
	return nil
}

// Get returns the cached compiler for a machine. A hit whose
// executable no longer exists, or whose mtime changed since detection,
// is dropped and reported as a miss.
func (dc *DetectionCache) Get(machine Machine) (*Compiler, bool) {
	if !dc.enabled {
		return nil, false
	}

	dc.mu.RLock()
	entry, found := dc.entries[machine.String()]
	dc.mu.RUnlock()
	if !found {
		return nil, false
	}

	info, err := os.Stat(entry.Path)
	if err != nil || info.ModTime().Unix() != entry.ModTime {
		dc.mu.Lock()
		delete(dc.entries, machine.String())
		dc.mu.Unlock()
		return nil, false
	}

	return &Compiler{
		Exelist:     []string{entry.Path},
		Version:     entry.Version,
		FullVersion: entry.FullVersion,
		Machine:     machine,
		IsCross:     machine != MachineBuild,
	}, true
}

// Put records a detected compiler. Compilers with a multi-element
// exelist are not cached; the mtime check only covers one executable.
func (dc *DetectionCache) Put(c *Compiler) error {
	if !dc.enabled {
		return nil
	}
	if len(c.Exelist) != 1 {
		return nil
	}

	info, err := os.Stat(c.Exelist[0])
	if err != nil {
		return fmt.Errorf("failed to stat compiler %s: %w", c.Exelist[0], err)
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.entries[c.Machine.String()] = cacheEntry{
		Path:        c.Exelist[0],
		Version:     c.Version,
		FullVersion: c.FullVersion,
		ModTime:     info.ModTime().Unix(),
	}
	return nil
}

// IsEnabled reports whether the cache is backed by a file.
func (dc *DetectionCache) IsEnabled() bool {
	return dc.enabled
}

// FilePath returns the backing file path, empty when disabled.
func (dc *DetectionCache) FilePath() string {
	return dc.filePath
}
