// Package config loads environment overrides for the juliabuild CLI.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the environment overrides. Flags take precedence over
// these; the environment covers CI setups where editing the command
// line is awkward.
type Config struct {
	// Juliac is the compiler executable, same as -juliac.
	Juliac string `env:"JULIABUILD_JULIAC"`
	// SubprojectsDir is the subprojects directory, same as -subprojects.
	SubprojectsDir string `env:"JULIABUILD_SUBPROJECTS"`
	// CachePath enables the compiler detection cache.
	CachePath string `env:"JULIABUILD_DETECTION_CACHE"`
	// Debug enables debug logging.
	Debug bool `env:"JULIABUILD_DEBUG"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
