// Package toolchain locates a Julia compiler and describes how to
// invoke it. It mirrors what a build system needs to know about a
// compiler: where it lives, what version it is, and how to spell its
// output arguments.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Language is the language id this toolchain serves.
const Language = "julia"

// ErrNotFound is returned by Detect when no Julia compiler can be
// located on the system.
var ErrNotFound = errors.New("julia compiler not found")

// Machine identifies which machine a compiler produces code for.
type Machine int

const (
	// MachineBuild is the machine the build runs on.
	MachineBuild Machine = iota
	// MachineHost is the machine the built artifacts run on.
	MachineHost
)

func (m Machine) String() string {
	switch m {
	case MachineBuild:
		return "build"
	case MachineHost:
		return "host"
	default:
		return fmt.Sprintf("machine(%d)", int(m))
	}
}

// Compiler is a detected Julia compiler.
type Compiler struct {
	// Exelist is the argv prefix used to invoke the compiler. It is
	// usually a single path, but wrappers (e.g. a launcher script plus
	// flags) keep it a list.
	Exelist []string
	// Version is the parsed "MAJOR.MINOR.PATCH" version.
	Version string
	// FullVersion is the raw first line of `--version` output.
	FullVersion string
	// Machine the compiler targets.
	Machine Machine
	// IsCross is true when Machine differs from the build machine.
	IsCross bool

	logger *slog.Logger
}

// Option configures Detect.
type Option func(*detectConfig)

type detectConfig struct {
	path    string
	names   []string
	machine Machine
	logger  *slog.Logger
}

// WithPath pins detection to an explicit compiler executable instead
// of searching PATH.
func WithPath(path string) Option {
	return func(c *detectConfig) { c.path = path }
}

// WithNames overrides the executable names searched on PATH.
// The default is ["juliac", "julia"].
func WithNames(names ...string) Option {
	return func(c *detectConfig) { c.names = names }
}

// WithMachine sets the machine the compiler targets. The default is
// the host machine, matching juliac's single-machine reality.
func WithMachine(m Machine) Option {
	return func(c *detectConfig) { c.machine = m }
}

// WithLogger sets the logger used for detection and later invocations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *detectConfig) { c.logger = logger }
}

// Detect locates a Julia compiler and probes its version.
// Candidates are tried in order: the explicit path (if set), then each
// name on PATH. The first candidate that answers `--version` wins.
func Detect(ctx context.Context, opts ...Option) (*Compiler, error) {
	cfg := detectConfig{
		names:   []string{"juliac", "julia"},
		machine: MachineHost,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	var candidates []string
	if cfg.path != "" {
		candidates = []string{cfg.path}
	} else {
		for _, name := range cfg.names {
			path, err := exec.LookPath(name)
			if err != nil {
				cfg.logger.DebugContext(ctx, "compiler candidate not on PATH", slog.String("name", name))
				continue
			}
			candidates = append(candidates, path)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates for language %q: %w", Language, ErrNotFound)
	}

	var probeErrs []error
	for _, path := range candidates {
		version, fullVersion, err := probeVersion(ctx, cfg.logger, path)
		if err != nil {
			cfg.logger.WarnContext(ctx, "compiler candidate did not answer --version, skipping",
				slog.String("path", path), slog.Any("error", err))
			probeErrs = append(probeErrs, err)
			continue
		}
		c := &Compiler{
			Exelist:     []string{path},
			Version:     version,
			FullVersion: fullVersion,
			Machine:     cfg.machine,
			IsCross:     cfg.machine != MachineBuild,
			logger:      cfg.logger,
		}
		cfg.logger.DebugContext(ctx, "detected julia compiler",
			slog.String("path", path), slog.String("version", version))
		return c, nil
	}
	return nil, fmt.Errorf("all candidates failed version probe: %w", errors.Join(probeErrs...))
}

// SetLogger attaches the logger used by Command. Compilers restored
// from the detection cache have no logger until one is attached.
func (c *Compiler) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// OutputArgs returns the arguments that direct object output to
// outputName.
func (c *Compiler) OutputArgs(outputName string) []string {
	return []string{"--output-o", outputName}
}

// OptimizationArgs returns the arguments for an optimization level.
// juliac exposes no optimization flags, so this is always empty.
func (c *Compiler) OptimizationArgs(level string) []string {
	return nil
}

// VersionAtLeast reports whether the detected version is min or newer.
// min is a plain version like "1.10".
func (c *Compiler) VersionAtLeast(min string) bool {
	if c.Version == "" {
		return false
	}
	return semver.Compare(canonicalVersion(c.Version), canonicalVersion(min)) >= 0
}

// SanityCheck verifies the compiler executes from workDir. juliac has
// no cheap compile probe, so responding to `--version` is the check.
func (c *Compiler) SanityCheck(ctx context.Context, workDir string) error {
	cmd := c.Command(ctx, "--version")
	cmd.Dir = workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("sanity check for %v failed in %s: %w (output: %s)",
			c.Exelist, workDir, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Command builds an *exec.Cmd invoking the compiler with extra args
// appended to the exelist. The full argv is logged at debug.
func (c *Compiler) Command(ctx context.Context, extra ...string) *exec.Cmd {
	argv := append(append([]string{}, c.Exelist...), extra...)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if c.logger != nil {
		c.logger.DebugContext(ctx, "executing compiler", slog.Any("args", cmd.Args))
	}
	return cmd
}

var versionRe = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?`)

// probeVersion runs `<path> --version` and parses the reported version.
func probeVersion(ctx context.Context, logger *slog.Logger, path string) (version, fullVersion string, err error) {
	cmd := exec.CommandContext(ctx, path, "--version")
	logger.DebugContext(ctx, "probing compiler version", slog.Any("args", cmd.Args))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", "", fmt.Errorf("run %s --version: %w", path, err)
	}
	return ParseVersion(string(out))
}

// ParseVersion extracts the dotted version from `--version` output,
// e.g. "julia version 1.10.4" yields "1.10.4". The first line of the
// output is returned as the full version string.
func ParseVersion(out string) (version, fullVersion string, err error) {
	fullVersion, _, _ = strings.Cut(strings.TrimSpace(out), "\n")
	fullVersion = strings.TrimSpace(fullVersion)
	version = versionRe.FindString(fullVersion)
	if version == "" {
		return "", "", fmt.Errorf("no version found in output %q", fullVersion)
	}
	return version, fullVersion, nil
}

// canonicalVersion adapts a plain dotted version to the "vX.Y.Z" form
// the semver package expects.
func canonicalVersion(v string) string {
	return semver.Canonical("v" + strings.TrimPrefix(v, "v"))
}
