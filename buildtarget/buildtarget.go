// Package buildtarget turns Julia sources into shared libraries a C
// or Go program can link against. Each target compiles its sources to
// objects with juliac and links them with the system C compiler.
package buildtarget

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/maj0e/juliabuild/toolchain"
)

// SharedLibrary is a single shared-library target.
type SharedLibrary struct {
	// Name is the bare library name, used verbatim: no "lib" prefix is
	// added, so a target named "hello" produces "hello.so".
	Name string
	// Sources are the Julia source files, absolute or relative to the
	// working directory of the build.
	Sources []string
	// OutDir is where the library and its object staging dir land.
	OutDir string
}

// NewSharedLibrary validates and creates a target. Name and at least
// one source are required.
func NewSharedLibrary(name string, outDir string, sources ...string) (*SharedLibrary, error) {
	if name == "" {
		return nil, fmt.Errorf("library target requires a name")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("library target %q requires at least one source", name)
	}
	return &SharedLibrary{Name: name, Sources: sources, OutDir: outDir}, nil
}

// Filename returns the platform filename of the library.
func (t *SharedLibrary) Filename() string {
	return t.Name + "." + librarySuffix()
}

// OutputPath returns the full path the built library is written to.
func (t *SharedLibrary) OutputPath() string {
	return filepath.Join(t.OutDir, t.Filename())
}

// workDir is the per-target staging directory for object files.
func (t *SharedLibrary) workDir() string {
	return filepath.Join(t.OutDir, t.Name+".p")
}

func librarySuffix() string {
	if runtime.GOOS == "windows" {
		return "dll"
	}
	return "so"
}

// Runner executes target builds with a detected compiler.
type Runner struct {
	// Juliac compiles Julia sources to objects.
	Juliac *toolchain.Compiler
	// CC links objects into the shared library. Defaults to ["cc"].
	CC []string
	// Logger defaults to a stderr warn-level text handler.
	Logger *slog.Logger
}

// Build compiles and links all targets, running targets in parallel
// and failing fast on the first error.
func (r *Runner) Build(ctx context.Context, targets ...*SharedLibrary) error {
	if r.Juliac == nil {
		return fmt.Errorf("runner has no compiler")
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			return r.buildOne(ctx, logger, target)
		})
	}
	return g.Wait()
}

func (r *Runner) buildOne(ctx context.Context, logger *slog.Logger, target *SharedLibrary) error {
	for _, src := range target.Sources {
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("source for target %q: %w", target.Name, err)
		}
	}
	if err := os.MkdirAll(target.workDir(), 0755); err != nil {
		return fmt.Errorf("failed to create work dir for target %q: %w", target.Name, err)
	}

	objects := make([]string, len(target.Sources))
	for i, src := range target.Sources {
		obj := filepath.Join(target.workDir(), objectName(src))
		args := append(r.Juliac.OutputArgs(obj), src)
		cmd := r.Juliac.Command(ctx, args...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("compile %s for target %q: %w (output: %s)",
				src, target.Name, err, strings.TrimSpace(string(out)))
		}
		objects[i] = obj
	}

	return r.link(ctx, logger, target, objects)
}

func (r *Runner) link(ctx context.Context, logger *slog.Logger, target *SharedLibrary, objects []string) error {
	cc := r.CC
	if len(cc) == 0 {
		cc = []string{"cc"}
	}
	argv := append(append([]string{}, cc...), "-shared", "-o", target.OutputPath())
	argv = append(argv, objects...)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	logger.DebugContext(ctx, "linking shared library",
		slog.String("target", target.Name), slog.Any("args", cmd.Args))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("link target %q: %w (output: %s)",
			target.Name, err, strings.TrimSpace(string(out)))
	}
	logger.DebugContext(ctx, "built shared library",
		slog.String("target", target.Name), slog.String("path", target.OutputPath()))
	return nil
}

// objectName maps a source path to its object filename. The whole
// path is mangled so sources with the same basename in different
// directories do not collide in the staging dir.
func objectName(src string) string {
	mangled := filepath.ToSlash(filepath.Clean(src))
	mangled = strings.NewReplacer("/", "_", ":", "_", "..", "__").Replace(mangled)
	if ext := filepath.Ext(mangled); ext != "" {
		mangled = strings.TrimSuffix(mangled, ext)
	}
	return mangled + ".o"
}
