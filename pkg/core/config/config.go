// Package config loads runtime configuration the way the teacher's
// cmd/api/main.go does: godotenv for .env defaults, layered under a
// yaml.v2-decoded config file, with CLI flags (applied by the caller)
// taking final precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds every runtime knob the CLI and Pulse orchestrator need.
type Config struct {
	Fetcher    FetcherConfig    `yaml:"fetcher"`
	Simulation SimulationConfig `yaml:"simulation"`
	Adapters   AdaptersConfig   `yaml:"adapters"`
	DatabaseURL string          `yaml:"-"` // populated from PULSE_DATABASE_URL, never from yaml
}

// FetcherConfig configures the data-fetcher registry.
type FetcherConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the configured fetch timeout, defaulting to 10s.
func (f FetcherConfig) Timeout() time.Duration {
	if f.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// SimulationConfig holds default Monte Carlo engine settings, overridden
// by a scenario's own `simulate` block and then by CLI flags.
type SimulationConfig struct {
	Runs        int       `yaml:"runs"`
	Seed        int64     `yaml:"seed"`
	Percentiles []float64 `yaml:"percentiles"`
}

// AdaptersConfig allow-lists which bundled adapters are enabled.
type AdaptersConfig struct {
	Eurostat  bool `yaml:"eurostat"`
	WorldBank bool `yaml:"world_bank"`
	Fallback  bool `yaml:"fallback"`
}

// Default returns the built-in baseline configuration, used when no config
// file is present.
func Default() Config {
	return Config{
		Fetcher: FetcherConfig{TimeoutSeconds: 10},
		Simulation: SimulationConfig{
			Runs:        2000,
			Seed:        42,
			Percentiles: []float64{5, 25, 50, 75, 95},
		},
		Adapters: AdaptersConfig{Eurostat: true, WorldBank: true, Fallback: true},
	}
}

// Load reads .env (if present, via godotenv) then a YAML config file at
// path (if non-empty and present), layering file values over the
// defaults. Missing files are not errors; malformed YAML is.
func Load(path string) (Config, error) {
	godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyEnv(cfg), nil
			}
			return cfg, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	cfg.DatabaseURL = os.Getenv("PULSE_DATABASE_URL")
	return cfg
}
