package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `grid:
  topology: "data/case33bw.m"
data:
  load: "data/load.csv"
  pv: "data/pv.zip"
  step: "15m"
  run_day: "2023-06-21"
pv:
  count: 2
  assignment:
    PV1: 18
    PV2: 33
limits:
  line_loading_max: 90
search:
  alpha_max: 2
solver:
  max_iterations: 80
output:
  dir: "results"
  matrix_format: "csv"
  chart: true
checkpoint:
  path: "results/steps.jsonl"
  resume: true
metrics:
  prometheus_addr: ":9090"
  sinks:
    - type: "nop"
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"topology", cfg.Grid.Topology, "data/case33bw.m"},
		{"sbase default", cfg.Grid.SBaseMVA, 100.0},
		{"vbase default", cfg.Grid.VBaseKV, 12.66},
		{"step", cfg.Data.Step, 15 * time.Minute},
		{"run_day", cfg.Data.RunDay, "2023-06-21"},
		{"pv count", cfg.PV.Count, 2},
		{"assignment", cfg.PV.Assignment["PV2"], 33},
		{"line_loading_max", cfg.Limits.LineLoadingMax, 90.0},
		{"vmin default", cfg.Limits.VMin, 0.95},
		{"alpha_max", cfg.Search.AlphaMax, 2.0},
		{"search tol default", cfg.Search.Tol, 1e-3},
		{"solver type", cfg.Solver.Type, "sweep"},
		{"solver max_iterations", cfg.PowerFlow().MaxIterations, 80},
		{"solver tolerance", cfg.PowerFlow().Tolerance, 1e-8},
		{"power factor", cfg.Injection.PowerFactor, 0.95},
		{"output dir", cfg.Output.Dir, "results"},
		{"matrix format", cfg.Output.MatrixFormat, "csv"},
		{"chart", cfg.Output.Chart, true},
		{"resume", cfg.Checkpoint.Resume, true},
		{"prometheus", cfg.Metrics.PrometheusAddr, ":9090"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"log level", cfg.Logging.Level, "debug"},
		{"events buffer", cfg.Events.Buffer, 64},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
	day, err := cfg.Data.Day()
	if err != nil || !day.Equal(time.Date(2023, 6, 21, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day: %v %v", day, err)
	}
}

func TestLoadJSONDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{"grid":{"topology":"t.m"},"data":{"load":"l.csv","pv":"pv"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.PV.Count != 7 {
		t.Errorf("pv count default: %d", cfg.PV.Count)
	}
	if cfg.Output.MatrixFormat != "parquet" || cfg.Output.Dir != "out" {
		t.Errorf("output defaults: %+v", cfg.Output)
	}
	if cfg.Search.MonotonicityProbes != 2 || cfg.Search.MaxIterations != 20 {
		t.Errorf("search defaults: %+v", cfg.Search)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level default: %s", cfg.Logging.Level)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `grid:
  topology: "t.m"
data:
  load: "l.csv"
  pv: "pv"
pv:
  seed: 1
`)
	t.Setenv("HC_DATA__RUN_DAY", "2023-01-02")
	t.Setenv("HC_PV__SEED", "42")
	t.Setenv("HC_OUTPUT__DIR", "/tmp/hc")
	t.Setenv("HC_SEARCH__ALPHA_MAX", "2")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Data.RunDay != "2023-01-02" {
		t.Errorf("run_day: %q", cfg.Data.RunDay)
	}
	if cfg.PV.Seed != 42 {
		t.Errorf("seed: %d", cfg.PV.Seed)
	}
	if cfg.Output.Dir != "/tmp/hc" {
		t.Errorf("dir: %q", cfg.Output.Dir)
	}
	if cfg.Search.AlphaMax != 2 || cfg.Search.Tol != 1e-3 {
		t.Errorf("search: %+v", cfg.Search)
	}
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	path := writeConfig(t, "config.yaml", `grid:
  topology: "t.m"
data:
  load: "l.csv"
  pv: "pv"
limits:
  voltage_tol: 0
  loading_tol: 0
search:
  monotonicity_probes: 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"voltage_tol", cfg.Limits.VoltageTol, 0.0},
		{"loading_tol", cfg.Limits.LoadingTol, 0.0},
		{"vmin default", cfg.Limits.VMin, 0.95},
		{"line_loading_max default", cfg.Limits.LineLoadingMax, 100.0},
		{"monotonicity_probes", cfg.Search.MonotonicityProbes, 0},
		{"alpha_max default", cfg.Search.AlphaMax, 3.0},
		{"max_iterations default", cfg.Search.MaxIterations, 20},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestSetDefaultsFillsEmptySections(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if cfg.Limits.VoltageTol != 1e-6 || cfg.Search.MonotonicityProbes != 2 {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Limits, cfg.Search)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{"missing topology", "data:\n  load: l\n  pv: p\n", "topology is required"},
		{"missing data", "grid:\n  topology: t\n", "load and pv are required"},
		{"bad day", "grid:\n  topology: t\ndata:\n  load: l\n  pv: p\n  run_day: 21/06/2023\n", "run_day"},
		{"inverted band", "grid:\n  topology: t\ndata:\n  load: l\n  pv: p\nlimits:\n  vmin_pu: 1.1\n", "voltage band"},
		{"assignment size", "grid:\n  topology: t\ndata:\n  load: l\n  pv: p\npv:\n  count: 3\n  assignment:\n    PV1: 2\n", "assignment has 1"},
		{"format", "grid:\n  topology: t\ndata:\n  load: l\n  pv: p\noutput:\n  matrix_format: feather\n", "matrix_format"},
		{"resume", "grid:\n  topology: t\ndata:\n  load: l\n  pv: p\ncheckpoint:\n  resume: true\n", "resume requires a path"},
		{"level", "grid:\n  topology: t\ndata:\n  load: l\n  pv: p\nlogging:\n  level: loud\n", "unknown level"},
		{"power factor", "grid:\n  topology: t\ndata:\n  load: l\n  pv: p\ninjection:\n  power_factor: 1.2\n", "power_factor"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tc.data))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := Load(writeConfig(t, "config.toml", "")); err == nil {
		t.Fatal("expected error for toml")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("example config: %v", err)
	}
	if cfg.PV.Count != 7 || cfg.Solver.Type != "sweep" || cfg.Data.Step != 15*time.Minute {
		t.Fatalf("unexpected example values: %+v", cfg)
	}
}
