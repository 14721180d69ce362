package juliabuild

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/maj0e/juliabuild/toolchain"
)

// writeFakeToolchain creates fake juliac and cc scripts and returns
// their paths. The juliac script answers --version and touches the
// file named after --output-o; the cc script touches the file after
// -o.
func writeFakeToolchain(t *testing.T, dir string) (juliacPath string, cc []string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts require a POSIX shell")
	}

	juliacPath = filepath.Join(dir, "juliac")
	juliacScript := `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "julia version 1.10.4"
  exit 0
fi
while [ $# -gt 0 ]; do
  if [ "$1" = "--output-o" ]; then
    shift
    : > "$1"
  fi
  shift
done
`
	if err := os.WriteFile(juliacPath, []byte(juliacScript), 0755); err != nil {
		t.Fatalf("Failed to write fake juliac: %v", err)
	}

	ccPath := filepath.Join(dir, "cc")
	ccScript := `#!/bin/sh
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then
    shift
    : > "$1"
  fi
  shift
done
`
	if err := os.WriteFile(ccPath, []byte(ccScript), 0755); err != nil {
		t.Fatalf("Failed to write fake cc: %v", err)
	}
	return juliacPath, []string{ccPath}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	juliac, _ := writeFakeToolchain(t, dir)

	b, err := New(ctx, dir, WithJuliac(juliac))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	if got := b.Compiler().Version; got != "1.10.4" {
		t.Errorf("Compiler().Version = %q, want %q", got, "1.10.4")
	}
	if want := filepath.Join(b.Root(), "subprojects"); b.SubprojectsDir() != want {
		t.Errorf("SubprojectsDir() = %q, want %q", b.SubprojectsDir(), want)
	}
}

func TestNewCompilerNotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := New(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("New() expected error without a compiler")
	}
}

func TestNewWithDetectionCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	juliac, _ := writeFakeToolchain(t, dir)
	cachePath := filepath.Join(dir, "detect.json")

	if _, err := New(ctx, dir, WithJuliac(juliac), WithDetectionCache(cachePath)); err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("detection cache was not written: %v", err)
	}

	// Second builder must resolve through the cache even when the
	// compiler path is not given.
	cache := toolchain.NewDetectionCache(cachePath)
	if err := cache.Load(); err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if _, found := cache.Get(toolchain.MachineHost); !found {
		t.Fatal("cache has no entry for the host machine")
	}

	b, err := New(ctx, dir, WithDetectionCache(cachePath))
	if err != nil {
		t.Fatalf("New() with cache returned error: %v", err)
	}
	if got := b.Compiler().Exelist[0]; got != juliac {
		t.Errorf("cached Exelist = %q, want %q", got, juliac)
	}
}

func TestBuildAll(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	juliac, cc := writeFakeToolchain(t, dir)

	src := filepath.Join(dir, "hello.jl")
	if err := os.WriteFile(src, []byte("hello_from_julia() = 42\n"), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	b, err := New(ctx, dir, WithJuliac(juliac), WithCC(cc...))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	target, err := b.AddLibrary("hello", src)
	if err != nil {
		t.Fatalf("AddLibrary() returned error: %v", err)
	}
	if err := b.BuildAll(ctx); err != nil {
		t.Fatalf("BuildAll() returned error: %v", err)
	}
	if _, err := os.Stat(target.OutputPath()); err != nil {
		t.Errorf("library was not produced: %v", err)
	}
}

func TestAddLibraryValidation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	juliac, _ := writeFakeToolchain(t, dir)

	b, err := New(ctx, dir, WithJuliac(juliac))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	if _, err := b.AddLibrary(""); err == nil {
		t.Error("AddLibrary() expected error for empty name")
	}
	if _, err := b.AddLibrary("hello"); err == nil {
		t.Error("AddLibrary() expected error for no sources")
	}
}

func TestBuildAllNoTargets(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	juliac, _ := writeFakeToolchain(t, dir)

	b, err := New(ctx, dir, WithJuliac(juliac))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if err := b.BuildAll(ctx); err != nil {
		t.Errorf("BuildAll() with no targets returned error: %v", err)
	}
}

func TestLockFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	juliac, _ := writeFakeToolchain(t, dir)

	b, err := New(ctx, dir, WithJuliac(juliac))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	lf, err := b.LockFile()
	if err != nil {
		t.Fatalf("LockFile() returned error: %v", err)
	}
	if lf == nil {
		t.Fatal("LockFile() returned nil for a project without a lock")
	}
	if len(lf.Subprojects) != 0 {
		t.Errorf("fresh lock file has %d entries, want 0", len(lf.Subprojects))
	}
}
