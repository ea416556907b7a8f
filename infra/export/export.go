// Package export writes the artifacts of a hosting-capacity run into an
// output directory.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilianp07/hostcap/core/logger"
	"github.com/kilianp07/hostcap/core/model"
	"github.com/kilianp07/hostcap/core/simulation"
)

// Artifact file names.
const (
	MetricsFile      = "metrics_timeseries.csv"
	CurvesFile       = "distribution_curves.csv"
	HCFile           = "hc_timeseries.csv"
	SummaryFile      = "hc_summary.json"
	LineLoadingBase  = "line_loading_timeseries"
	BusVoltageBase   = "bus_voltage_timeseries"
	RankingFile      = "line_ranking_latest.csv"
	MappingFile      = "pv_random_mapping.json"
	CurvesChartFile  = "distribution_curves.html"
	timeColumn       = "time"
	defaultMatrixFmt = "parquet"
)

// Options configures an Exporter.
type Options struct {
	Dir string
	// MatrixFormat names the registered writer for the per-line and per-bus
	// matrices; it falls back to csv when unavailable.
	MatrixFormat string
	// Chart adds an HTML rendering of the distribution curves.
	Chart bool
}

// Exporter writes run artifacts.
type Exporter struct {
	opts Options
	log  logger.Logger
}

// New creates an Exporter. log may be nil.
func New(opts Options, log logger.Logger) *Exporter {
	if opts.MatrixFormat == "" {
		opts.MatrixFormat = defaultMatrixFmt
	}
	return &Exporter{opts: opts, log: logger.OrNop(log)}
}

// Dir returns the output directory.
func (e *Exporter) Dir() string { return e.opts.Dir }

func (e *Exporter) path(name string) string { return filepath.Join(e.opts.Dir, name) }

func (e *Exporter) ensureDir() error {
	return os.MkdirAll(e.opts.Dir, 0o755)
}

// WriteMapping records the PV assignment before any step runs, as a single
// record keyed by source id in column order.
func (e *Exporter) WriteMapping(assign model.PVAssignment) (string, error) {
	if err := e.ensureDir(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	buf.WriteString("[\n  {")
	for i, s := range assign {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(s.Source)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&buf, "\n    %s: %d", key, s.Bus)
	}
	buf.WriteString("\n  }\n]\n")
	p := e.path(MappingFile)
	return p, os.WriteFile(p, buf.Bytes(), 0o644)
}

// Write exports every artifact of rep and returns the written paths.
func (e *Exporter) Write(rep *simulation.Report) ([]string, error) {
	if err := e.ensureDir(); err != nil {
		return nil, err
	}
	var written []string
	add := func(p string, err error) error {
		if err != nil {
			return err
		}
		written = append(written, p)
		return nil
	}
	steps := []struct {
		name string
		fn   func(*simulation.Report) (string, error)
	}{
		{MetricsFile, e.writeMetrics},
		{CurvesFile, e.writeCurves},
		{HCFile, e.writeHC},
		{SummaryFile, e.writeSummary},
		{LineLoadingBase, e.writeLineLoading},
		{BusVoltageBase, e.writeBusVoltage},
		{RankingFile, e.writeRanking},
	}
	for _, s := range steps {
		if err := add(s.fn(rep)); err != nil {
			return written, fmt.Errorf("export %s: %w", s.name, err)
		}
	}
	if e.opts.Chart {
		if err := add(e.writeChart(rep)); err != nil {
			// The chart is a convenience; its failure does not fail the run.
			e.log.Warnf("export %s: %v", CurvesChartFile, err)
		}
	}
	return written, nil
}

func (e *Exporter) writeSummary(rep *simulation.Report) (string, error) {
	data, err := json.MarshalIndent(rep.Summary, "", "  ")
	if err != nil {
		return "", err
	}
	p := e.path(SummaryFile)
	return p, os.WriteFile(p, append(data, '\n'), 0o644)
}
