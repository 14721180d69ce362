package buildtarget

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/maj0e/juliabuild/toolchain"
)

// writeScript creates an executable shell script in dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("Failed to write script %s: %v", name, err)
	}
	return path
}

// fakeJuliac touches the file named after --output-o, mimicking
// object output.
func fakeJuliac(t *testing.T, dir string) *toolchain.Compiler {
	t.Helper()
	path := writeScript(t, dir, "juliac", `while [ $# -gt 0 ]; do
  if [ "$1" = "--output-o" ]; then
    shift
    : > "$1"
  fi
  shift
done
`)
	return &toolchain.Compiler{Exelist: []string{path}, Version: "1.10.4", Machine: toolchain.MachineHost}
}

// fakeCC touches the file named after -o, mimicking the linker.
func fakeCC(t *testing.T, dir string) []string {
	t.Helper()
	path := writeScript(t, dir, "cc", `while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then
    shift
    : > "$1"
  fi
  shift
done
`)
	return []string{path}
}

func writeSource(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("hello_from_julia() = 42\n"), 0644); err != nil {
		t.Fatalf("Failed to write source %s: %v", name, err)
	}
	return path
}

func TestNewSharedLibrary(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		target, err := NewSharedLibrary("hello", "out", "hello.jl")
		if err != nil {
			t.Fatalf("NewSharedLibrary() returned error: %v", err)
		}
		if target.Name != "hello" {
			t.Errorf("Name = %q, want %q", target.Name, "hello")
		}
	})

	t.Run("missing_name", func(t *testing.T) {
		if _, err := NewSharedLibrary("", "out", "hello.jl"); err == nil {
			t.Fatal("NewSharedLibrary() expected error for empty name")
		}
	})

	t.Run("missing_sources", func(t *testing.T) {
		if _, err := NewSharedLibrary("hello", "out"); err == nil {
			t.Fatal("NewSharedLibrary() expected error for no sources")
		}
	})
}

func TestFilename(t *testing.T) {
	target := &SharedLibrary{Name: "hello", OutDir: "out"}
	want := "hello.so"
	if runtime.GOOS == "windows" {
		want = "hello.dll"
	}
	if got := target.Filename(); got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
	// No "lib" prefix is ever added.
	if strings.HasPrefix(target.Filename(), "lib") {
		t.Errorf("Filename() = %q must not carry a lib prefix", target.Filename())
	}
}

func TestObjectName(t *testing.T) {
	a := objectName(filepath.Join("a", "kalman.jl"))
	b := objectName(filepath.Join("b", "kalman.jl"))
	if a == b {
		t.Errorf("objectName collides for same basename in different dirs: %q", a)
	}
	if !strings.HasSuffix(a, ".o") {
		t.Errorf("objectName(%q) = %q, want .o suffix", "a/kalman.jl", a)
	}
}

func TestRunnerBuild(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	outDir := filepath.Join(dir, "build")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		t.Fatalf("Failed to create out dir: %v", err)
	}

	runner := &Runner{
		Juliac: fakeJuliac(t, dir),
		CC:     fakeCC(t, dir),
	}

	src1 := writeSource(t, dir, "hello.jl")
	src2 := writeSource(t, dir, "kalman.jl")
	target, err := NewSharedLibrary("hello", outDir, src1, src2)
	if err != nil {
		t.Fatalf("NewSharedLibrary() returned error: %v", err)
	}

	if err := runner.Build(ctx, target); err != nil {
		t.Fatalf("Build() returned error: %v", err)
	}
	if _, err := os.Stat(target.OutputPath()); err != nil {
		t.Errorf("library was not produced: %v", err)
	}
	objects, err := filepath.Glob(filepath.Join(target.workDir(), "*.o"))
	if err != nil || len(objects) != 2 {
		t.Errorf("expected 2 staged objects, got %v (err: %v)", objects, err)
	}
}

func TestRunnerBuildMissingSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	runner := &Runner{Juliac: fakeJuliac(t, dir)}
	target, err := NewSharedLibrary("hello", dir, filepath.Join(dir, "nope.jl"))
	if err != nil {
		t.Fatalf("NewSharedLibrary() returned error: %v", err)
	}

	if err := runner.Build(ctx, target); err == nil {
		t.Fatal("Build() expected error for missing source")
	}
}

func TestRunnerBuildCompileFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	broken := writeScript(t, dir, "juliac", "echo \"compile error\" >&2\nexit 1\n")
	runner := &Runner{
		Juliac: &toolchain.Compiler{Exelist: []string{broken}},
		CC:     fakeCC(t, dir),
	}

	src := writeSource(t, dir, "hello.jl")
	target, err := NewSharedLibrary("hello", dir, src)
	if err != nil {
		t.Fatalf("NewSharedLibrary() returned error: %v", err)
	}

	err = runner.Build(ctx, target)
	if err == nil {
		t.Fatal("Build() expected error for failing compiler")
	}
	if !strings.Contains(err.Error(), "compile error") {
		t.Errorf("error %q does not carry the compiler output", err)
	}
}

func TestRunnerBuildNoCompiler(t *testing.T) {
	runner := &Runner{}
	if err := runner.Build(context.Background()); err == nil {
		t.Fatal("Build() expected error without a compiler")
	}
}
