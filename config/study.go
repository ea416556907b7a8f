package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/hostcap/core/timeseries"
)

// GridConfig locates the feeder topology and sets the per-unit system.
type GridConfig struct {
	Topology string  `json:"topology"`
	SBaseMVA float64 `json:"sbase_mva"`
	VBaseKV  float64 `json:"vbase_kv"`
	// DefaultMaxIkA is the thermal rating of lines without RateA.
	DefaultMaxIkA float64 `json:"default_max_i_ka"`
}

// SetDefaults applies the IEEE 33-bus base values.
func (c *GridConfig) SetDefaults() {
	if c.SBaseMVA == 0 {
		c.SBaseMVA = 100
	}
	if c.VBaseKV == 0 {
		c.VBaseKV = 12.66
	}
	if c.DefaultMaxIkA == 0 {
		c.DefaultMaxIkA = 0.4
	}
}

// Validate checks mandatory fields.
func (c GridConfig) Validate() error {
	if c.Topology == "" {
		return fmt.Errorf("grid: topology is required")
	}
	if c.SBaseMVA <= 0 || c.VBaseKV <= 0 || c.DefaultMaxIkA <= 0 {
		return fmt.Errorf("grid: sbase_mva, vbase_kv and default_max_i_ka must be positive")
	}
	return nil
}

// DataConfig locates the load and PV time series.
type DataConfig struct {
	Load string `json:"load"`
	// LoadColumns is the number of bus columns after the timestamp; 0 means
	// one per bus of the topology.
	LoadColumns int `json:"load_columns"`
	// PV is a directory, a .zip or .rar archive, or a single table.
	PV            string        `json:"pv"`
	Step          time.Duration `json:"step"`
	UnitThreshold float64       `json:"unit_threshold"`
	// RunDay restricts the run to one UTC calendar day, as YYYY-MM-DD.
	RunDay string `json:"run_day"`
}

// SetDefaults applies the 15 minute grid and the kW threshold.
func (c *DataConfig) SetDefaults() {
	if c.Step == 0 {
		c.Step = timeseries.DefaultStep
	}
	if c.UnitThreshold == 0 {
		c.UnitThreshold = timeseries.DefaultUnitThreshold
	}
}

// Validate checks mandatory fields.
func (c DataConfig) Validate() error {
	if c.Load == "" || c.PV == "" {
		return fmt.Errorf("data: load and pv are required")
	}
	if c.Step <= 0 {
		return fmt.Errorf("data: step must be positive")
	}
	if c.LoadColumns < 0 {
		return fmt.Errorf("data: load_columns must not be negative")
	}
	if _, err := c.Day(); err != nil {
		return err
	}
	return nil
}

// Day parses RunDay; the zero time means the whole series.
func (c DataConfig) Day() (time.Time, error) {
	if c.RunDay == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, c.RunDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("data: run_day %q: %w", c.RunDay, err)
	}
	return d, nil
}

// PVConfig sets how many PV sources are read and where they connect.
type PVConfig struct {
	Count int    `json:"count"`
	Seed  uint64 `json:"seed"`
	// Assignment fixes the bus of each source, e.g. {PV1: 18}. When empty,
	// buses are drawn at random from Seed.
	Assignment map[string]int `json:"assignment"`
}

// SetDefaults applies the seven sources of the reference study.
func (c *PVConfig) SetDefaults() {
	if c.Count == 0 {
		c.Count = 7
	}
}

// Validate checks the source count.
func (c PVConfig) Validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("pv: count must be positive")
	}
	if len(c.Assignment) > 0 && len(c.Assignment) != c.Count {
		return fmt.Errorf("pv: assignment has %d sources, count is %d", len(c.Assignment), c.Count)
	}
	return nil
}

// SolverConfig selects the power-flow plugin and its iteration budget.
type SolverConfig struct {
	Type          string         `json:"type"`
	Conf          map[string]any `json:"conf"`
	MaxIterations int            `json:"max_iterations"`
	Tolerance     float64        `json:"tolerance"`
}

// SetDefaults applies the sweep solver budget.
func (c *SolverConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "sweep"
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 50
	}
	if c.Tolerance == 0 {
		c.Tolerance = 1e-8
	}
}

// Validate checks the budget.
func (c SolverConfig) Validate() error {
	if c.MaxIterations <= 0 || c.Tolerance <= 0 {
		return fmt.Errorf("solver: max_iterations and tolerance must be positive")
	}
	return nil
}

// InjectionConfig sets how loads are turned into injections.
type InjectionConfig struct {
	PowerFactor float64 `json:"power_factor"`
}

// SetDefaults applies a 0.95 lagging power factor.
func (c *InjectionConfig) SetDefaults() {
	if c.PowerFactor == 0 {
		c.PowerFactor = 0.95
	}
}

// Validate checks the power factor range.
func (c InjectionConfig) Validate() error {
	if c.PowerFactor <= 0 || c.PowerFactor > 1 {
		return fmt.Errorf("injection: power_factor must be within (0, 1], got %g", c.PowerFactor)
	}
	return nil
}

// OutputConfig sets where and how artifacts are written.
type OutputConfig struct {
	Dir          string `json:"dir"`
	MatrixFormat string `json:"matrix_format"`
	Chart        bool   `json:"chart"`
}

// SetDefaults applies the output directory and parquet matrices.
func (c *OutputConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "out"
	}
	if c.MatrixFormat == "" {
		c.MatrixFormat = "parquet"
	}
}

// Validate checks the matrix format.
func (c OutputConfig) Validate() error {
	switch c.MatrixFormat {
	case "parquet", "csv":
		return nil
	}
	return fmt.Errorf("output: unknown matrix_format %q", c.MatrixFormat)
}

// CheckpointConfig enables the JSONL step checkpoint.
type CheckpointConfig struct {
	Path   string `json:"path"`
	Resume bool   `json:"resume"`
}

// Validate rejects resume without a path.
func (c CheckpointConfig) Validate() error {
	if c.Resume && c.Path == "" {
		return fmt.Errorf("checkpoint: resume requires a path")
	}
	return nil
}

// EventsConfig sizes the step event bus.
type EventsConfig struct {
	Buffer int `json:"buffer"`
}

// SetDefaults applies a buffer of 64 events per subscriber.
func (c *EventsConfig) SetDefaults() {
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
}
