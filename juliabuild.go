// Package juliabuild compiles Julia sources into shared libraries a
// native program can link against. It combines a detected Julia
// toolchain, a set of library targets, and a lock file pinning
// subproject sources.
package juliabuild

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maj0e/juliabuild/buildtarget"
	"github.com/maj0e/juliabuild/toolchain"
	"github.com/maj0e/juliabuild/wrap"
)

// Builder is the main entry point. It holds the detected compiler and
// the targets registered so far.
type Builder struct {
	root           string
	subprojectsDir string
	outDir         string
	juliac         *toolchain.Compiler
	cc             []string
	targets        []*buildtarget.SharedLibrary
	logger         *slog.Logger
}

// Option configures New.
type Option func(*builderConfig)

type builderConfig struct {
	juliacPath     string
	subprojectsDir string
	outDir         string
	cachePath      string
	cc             []string
	logger         *slog.Logger
}

// WithLogger sets the logger. The default logs warnings and above to
// stderr as text.
func WithLogger(logger *slog.Logger) Option {
	return func(c *builderConfig) { c.logger = logger }
}

// WithJuliac pins the compiler executable instead of searching PATH.
func WithJuliac(path string) Option {
	return func(c *builderConfig) { c.juliacPath = path }
}

// WithSubprojectsDir overrides the subprojects directory. The default
// is "subprojects" under the project root.
func WithSubprojectsDir(dir string) Option {
	return func(c *builderConfig) { c.subprojectsDir = dir }
}

// WithOutDir overrides where built libraries land. The default is
// "build" under the project root.
func WithOutDir(dir string) Option {
	return func(c *builderConfig) { c.outDir = dir }
}

// WithDetectionCache persists compiler detection to path so repeated
// runs skip the version probe.
func WithDetectionCache(path string) Option {
	return func(c *builderConfig) { c.cachePath = path }
}

// WithCC overrides the linker argv. The default is ["cc"].
func WithCC(cc ...string) Option {
	return func(c *builderConfig) { c.cc = cc }
}

// New creates a Builder rooted at root and detects the Julia
// compiler.
func New(ctx context.Context, root string, opts ...Option) (*Builder, error) {
	var cfg builderConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", root, err)
	}

	juliac, err := detectCompiler(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	subprojectsDir := cfg.subprojectsDir
	if subprojectsDir == "" {
		subprojectsDir = filepath.Join(absRoot, "subprojects")
	}
	outDir := cfg.outDir
	if outDir == "" {
		outDir = filepath.Join(absRoot, "build")
	}

	return &Builder{
		root:           absRoot,
		subprojectsDir: subprojectsDir,
		outDir:         outDir,
		juliac:         juliac,
		cc:             cfg.cc,
		logger:         cfg.logger,
	}, nil
}

// detectCompiler resolves the compiler through the cache when one is
// configured, falling back to a fresh detection.
func detectCompiler(ctx context.Context, cfg *builderConfig) (*toolchain.Compiler, error) {
	cache := toolchain.NewDetectionCache(cfg.cachePath)
	cache.SetLogger(cfg.logger)
	if err := cache.Load(); err != nil {
		cfg.logger.Warn("could not load detection cache, re-detecting", slog.Any("error", err))
	}

	if juliac, ok := cache.Get(toolchain.MachineHost); ok {
		juliac.SetLogger(cfg.logger)
		cfg.logger.Debug("compiler detection cache hit", slog.Any("exelist", juliac.Exelist))
		return juliac, nil
	}

	detectOpts := []toolchain.Option{toolchain.WithLogger(cfg.logger)}
	if cfg.juliacPath != "" {
		detectOpts = append(detectOpts, toolchain.WithPath(cfg.juliacPath))
	}
	juliac, err := toolchain.Detect(ctx, detectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to detect julia compiler: %w", err)
	}

	if cache.IsEnabled() {
		if err := cache.Put(juliac); err != nil {
			cfg.logger.Warn("could not cache compiler detection", slog.Any("error", err))
		} else if err := cache.Save(); err != nil {
			cfg.logger.Warn("could not save detection cache", slog.Any("error", err))
		}
	}
	return juliac, nil
}

// Compiler returns the detected Julia compiler.
func (b *Builder) Compiler() *toolchain.Compiler {
	return b.juliac
}

// Root returns the project root directory.
func (b *Builder) Root() string {
	return b.root
}

// SubprojectsDir returns the directory holding subprojects and the
// lock file.
func (b *Builder) SubprojectsDir() string {
	return b.subprojectsDir
}

// AddLibrary registers a shared-library target. Name is required and
// at least one source must be given.
func (b *Builder) AddLibrary(name string, sources ...string) (*buildtarget.SharedLibrary, error) {
	target, err := buildtarget.NewSharedLibrary(name, b.outDir, sources...)
	if err != nil {
		return nil, err
	}
	b.targets = append(b.targets, target)
	return target, nil
}

// BuildAll compiles and links every registered target. Targets build
// in parallel; the first failure cancels the rest.
func (b *Builder) BuildAll(ctx context.Context) error {
	if len(b.targets) == 0 {
		b.logger.Warn("no targets registered, nothing to build")
		return nil
	}
	if err := os.MkdirAll(b.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir %s: %w", b.outDir, err)
	}
	runner := &buildtarget.Runner{
		Juliac: b.juliac,
		CC:     b.cc,
		Logger: b.logger,
	}
	return runner.Build(ctx, b.targets...)
}

// LockFile loads the lock file from the subprojects dir, returning a
// fresh one when none exists yet.
func (b *Builder) LockFile() (*wrap.LockFile, error) {
	lf, err := wrap.Load(b.subprojectsDir)
	if err != nil {
		return nil, err
	}
	if lf == nil {
		lf = wrap.NewLockFile()
	}
	return lf, nil
}
