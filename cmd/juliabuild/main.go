// Command juliabuild compiles Julia sources into a shared library and
// records subproject pins in the lock file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/maj0e/juliabuild"
	"github.com/maj0e/juliabuild/internal/config"
)

func main() {
	var (
		root        string
		name        string
		sources     string
		juliac      string
		outDir      string
		subprojects string
	)

	flag.StringVar(&root, "root", ".", "project root directory")
	flag.StringVar(&name, "name", "", "library name (empty: only detect the compiler)")
	flag.StringVar(&sources, "sources", "", "comma-separated julia sources")
	flag.StringVar(&juliac, "juliac", "", "path to the julia compiler (default: search PATH)")
	flag.StringVar(&outDir, "out", "", "output directory (default: <root>/build)")
	flag.StringVar(&subprojects, "subprojects", "", "subprojects directory holding the lock file (default: <root>/subprojects)")
	flag.Parse()

	if name != "" && sources == "" {
		log.Fatal("-sources is required when -name is given")
	}

	if err := run(root, name, sources, juliac, outDir, subprojects); err != nil {
		log.Fatalf("!! %+v", err)
	}
}

func run(root, name, sources, juliac, outDir, subprojects string) error {
	ctx := context.Background()

	cfg, err := config.ParseEnv()
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if juliac == "" {
		juliac = cfg.Juliac
	}
	if subprojects == "" {
		subprojects = cfg.SubprojectsDir
	}

	opts := []juliabuild.Option{juliabuild.WithLogger(logger)}
	if juliac != "" {
		opts = append(opts, juliabuild.WithJuliac(juliac))
	}
	if subprojects != "" {
		opts = append(opts, juliabuild.WithSubprojectsDir(subprojects))
	}
	if cfg.CachePath != "" {
		opts = append(opts, juliabuild.WithDetectionCache(cfg.CachePath))
	}
	if outDir != "" {
		opts = append(opts, juliabuild.WithOutDir(outDir))
	}

	b, err := juliabuild.New(ctx, root, opts...)
	if err != nil {
		return err
	}

	c := b.Compiler()
	fmt.Printf("julia compiler: %s (version %s)\n", strings.Join(c.Exelist, " "), c.Version)

	if name == "" {
		return nil
	}

	target, err := b.AddLibrary(name, strings.Split(sources, ",")...)
	if err != nil {
		return err
	}
	if err := b.BuildAll(ctx); err != nil {
		return err
	}
	fmt.Printf("built %s\n", target.OutputPath())
	return nil
}
