// Package config loads the YAML or JSON run configuration with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/hostcap/core/hosting"
	"github.com/kilianp07/hostcap/core/metrics"
	"github.com/kilianp07/hostcap/core/powerflow"
)

// EnvPrefix marks environment overrides. HC_DATA__RUN_DAY sets data.run_day.
const EnvPrefix = "HC_"

type Config struct {
	Grid       GridConfig       `json:"grid"`
	Data       DataConfig       `json:"data"`
	PV         PVConfig         `json:"pv"`
	Limits     hosting.Limits   `json:"limits"`
	Search     hosting.Params   `json:"search"`
	Solver     SolverConfig     `json:"solver"`
	Injection  InjectionConfig  `json:"injection"`
	Output     OutputConfig     `json:"output"`
	Checkpoint CheckpointConfig `json:"checkpoint"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    metrics.Config   `json:"metrics"`
	Events     EventsConfig     `json:"events"`
	Sentry     SentryConfig     `json:"sentry"`
}

// Load reads path, applies HC_ environment overrides, fills defaults and
// validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Config{Limits: hosting.DefaultLimits(), Search: hosting.DefaultParams()}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	c.Grid.SetDefaults()
	c.Data.SetDefaults()
	c.PV.SetDefaults()
	c.Solver.SetDefaults()
	c.Injection.SetDefaults()
	c.Output.SetDefaults()
	c.Logging.SetDefaults()
	c.Events.SetDefaults()

	// Limits and search are defaulted as a whole; Load pre-fills them so a
	// file can set single fields, including explicit zeros.
	if c.Limits == (hosting.Limits{}) {
		c.Limits = hosting.DefaultLimits()
	}
	if c.Search == (hosting.Params{}) {
		c.Search = hosting.DefaultParams()
	}
}

// Validate returns every section error joined.
func (c *Config) Validate() error {
	return errors.Join(
		c.Grid.Validate(),
		c.Data.Validate(),
		c.PV.Validate(),
		c.Limits.Validate(),
		c.Search.Validate(),
		c.Solver.Validate(),
		c.Injection.Validate(),
		c.Output.Validate(),
		c.Checkpoint.Validate(),
		c.Logging.Validate(),
		c.Sentry.Validate(),
	)
}

// PowerFlow returns the solver iteration budget.
func (c *Config) PowerFlow() powerflow.Options {
	return powerflow.Options{MaxIterations: c.Solver.MaxIterations, Tolerance: c.Solver.Tolerance}
}
