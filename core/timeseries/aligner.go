package timeseries

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/hostcap/core/logger"
	"github.com/kilianp07/hostcap/core/model"
)

// DefaultStep is the canonical resolution of the simulation.
const DefaultStep = 15 * time.Minute

// DefaultUnitThreshold separates kW series from per-unit ones.
const DefaultUnitThreshold = 2.0

// UnitRule decides whether a generation series is in kW. It is a magnitude
// heuristic: a series whose maximum exceeds Threshold is taken as kW and
// converted to per-unit on SBaseMVA.
type UnitRule struct {
	Threshold float64
	SBaseMVA  float64
}

// Apply converts vals in place and reports the decision and the observed max.
func (u UnitRule) Apply(vals []float64) (kw bool, peak float64) {
	peak = math.Inf(-1)
	for _, v := range vals {
		if !math.IsNaN(v) && v > peak {
			peak = v
		}
	}
	if math.IsInf(peak, -1) {
		return false, 0
	}
	th := u.Threshold
	if th <= 0 {
		th = DefaultUnitThreshold
	}
	if peak > th && u.SBaseMVA > 0 {
		floats.Scale(1/(1000*u.SBaseMVA), vals)
		return true, peak
	}
	return false, peak
}

// SourceReport describes how one generation source was interpreted.
type SourceReport struct {
	Ref       string  `json:"ref"`
	Column    string  `json:"column"`
	Synthetic bool    `json:"synthetic_index"`
	KW        bool    `json:"kw"`
	Peak      float64 `json:"peak"`
	Dropped   int     `json:"dropped_rows"`
	Filled    int     `json:"filled_cells"`
}

// Aligner reads load and generation tables onto one canonical grid.
type Aligner struct {
	Step  time.Duration
	Units UnitRule
	Log   logger.Logger
}

// NewAligner returns an Aligner with defaults for zero values.
func NewAligner(step time.Duration, units UnitRule, log logger.Logger) *Aligner {
	if step <= 0 {
		step = DefaultStep
	}
	if units.Threshold <= 0 {
		units.Threshold = DefaultUnitThreshold
	}
	return &Aligner{Step: step, Units: units, Log: logger.OrNop(log)}
}

// ReadLoad builds the per-unit load table. The first column is the timestamp
// and the next columns values map to buses 1..columns.
func (a *Aligner) ReadLoad(raw *RawTable, columns int) (*Table, Coverage, error) {
	if columns <= 0 {
		return nil, Coverage{}, model.Configf("read load", "load column count must be positive, got %d", columns)
	}
	if w := raw.Width(); w < columns+1 {
		return nil, Coverage{}, model.Configf("read load", "%s has %d columns, need a time column and %d bus columns", raw.Name, w, columns)
	}
	if len(raw.Rows) == 0 {
		return nil, Coverage{}, model.Alignf("read load", "%s has no data rows", raw.Name)
	}
	idx := a.index(raw)

	cols := make([][]float64, columns)
	names := make([]string, columns)
	for j := 0; j < columns; j++ {
		names[j] = strconv.Itoa(j + 1)
		cols[j] = numericColumn(raw, j+1, idx.rows)
	}
	grid, vals, cov, err := Regrid(idx.times, cols, a.Step)
	if err != nil {
		return nil, cov, model.Alignf("read load", "%s: %v", raw.Name, err)
	}
	if cov.Filled > 0 {
		a.Log.Warnf("load %s: %d of %d cells outside source coverage set to 0", raw.Name, cov.Filled, cov.Cells)
	}
	return &Table{Index: grid, Columns: names, Values: vals}, cov, nil
}

// ReadGeneration reads the first count usable tables under root, in name
// order, and interpolates each onto target. Columns are named PV1..PVn.
func (a *Aligner) ReadGeneration(src TableSource, root string, count int, target []time.Time) (*Table, []SourceReport, error) {
	if count <= 0 {
		return nil, nil, model.Configf("read generation", "PV count must be positive, got %d", count)
	}
	refs, err := src.List(root)
	if err != nil {
		return nil, nil, &model.ConfigurationError{Op: "read generation", Err: err}
	}
	if len(refs) < count {
		return nil, nil, model.Configf("read generation", "found %d PV tables under %s, need %d", len(refs), root, count)
	}

	out := &Table{Index: target}
	reports := make([]SourceReport, 0, count)
	for _, ref := range refs {
		if len(reports) == count {
			break
		}
		raw, err := src.Read(ref)
		if err != nil {
			a.Log.Warnf("PV source %s skipped: %v", ref, err)
			continue
		}
		series, rep, ok := a.generationSeries(raw)
		if !ok {
			a.Log.Warnf("PV source %s skipped: no numeric column", ref)
			continue
		}
		rep.Ref = ref
		vals, cov := Interpolate(series.index, series.values, target)
		rep.Filled = cov.Filled
		if rep.KW {
			a.Log.Infof("PV source %s column %q peak %.3f treated as kW", ref, rep.Column, rep.Peak)
		} else {
			a.Log.Infof("PV source %s column %q peak %.3f treated as per-unit", ref, rep.Column, rep.Peak)
		}
		if cov.Filled > 0 {
			a.Log.Warnf("PV source %s: %d of %d steps outside source coverage set to 0", ref, cov.Filled, cov.Cells)
		}
		out.Columns = append(out.Columns, "PV"+strconv.Itoa(len(reports)+1))
		out.Values = append(out.Values, vals)
		reports = append(reports, rep)
	}
	if len(reports) < count {
		return nil, reports, model.Configf("read generation", "only %d of %d PV tables under %s are usable", len(reports), count, root)
	}
	return out, reports, nil
}

type series struct {
	index  []time.Time
	values []float64
}

// generationSeries picks the power column of a PV table and regrids it.
func (a *Aligner) generationSeries(raw *RawTable) (series, SourceReport, bool) {
	idx := a.index(raw)
	first := 1
	if idx.synthetic {
		first = 0
	}
	col := -1
	for c := first; c < raw.Width(); c++ {
		if isNumericColumn(raw, c, idx.rows) {
			col = c
			break
		}
	}
	if col < 0 {
		return series{}, SourceReport{}, false
	}
	rep := SourceReport{Synthetic: idx.synthetic, Dropped: idx.dropped, Column: columnName(raw, col)}
	vals := numericColumn(raw, col, idx.rows)
	rep.KW, rep.Peak = a.Units.Apply(vals)

	grid, out, _, err := Regrid(idx.times, [][]float64{vals}, a.Step)
	if err != nil {
		return series{}, rep, false
	}
	return series{index: grid, values: out[0]}, rep, true
}

func (a *Aligner) index(raw *RawTable) rowIndex {
	idx := indexRows(raw, 0)
	switch {
	case idx.synthetic:
		a.Log.Warnf("%s: no parseable timestamps, using hourly index from %s", raw.Name, SyntheticEpoch.Format(time.RFC3339))
	case idx.dropped > 0:
		a.Log.Warnf("%s: dropped %d rows with unparseable or duplicate timestamps", raw.Name, idx.dropped)
	}
	return idx
}

func numericColumn(raw *RawTable, col int, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		if v, ok := parseNumber(raw.Cell(r, col)); ok {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// isNumericColumn holds when every non-empty cell is a number and at least
// one is.
func isNumericColumn(raw *RawTable, col int, rows []int) bool {
	seen := false
	for _, r := range rows {
		c := raw.Cell(r, col)
		if c == "" {
			continue
		}
		if _, ok := parseNumber(c); !ok {
			return false
		}
		seen = true
	}
	return seen
}

func columnName(raw *RawTable, col int) string {
	if col < len(raw.Header) && strings.TrimSpace(raw.Header[col]) != "" {
		return strings.TrimSpace(raw.Header[col])
	}
	return "column " + strconv.Itoa(col+1)
}

// Align checks that load and generation share one index and hold no NaN.
func Align(load, gen *Table) error {
	if err := load.Validate(); err != nil {
		return model.Alignf("align", "load: %v", err)
	}
	if err := gen.Validate(); err != nil {
		return model.Alignf("align", "generation: %v", err)
	}
	if load.Len() != gen.Len() {
		return model.Alignf("align", "load has %d steps, generation %d", load.Len(), gen.Len())
	}
	for i := range load.Index {
		if !load.Index[i].Equal(gen.Index[i]) {
			return model.Alignf("align", "index differs at step %d: %s vs %s", i,
				load.Index[i].Format(time.RFC3339), gen.Index[i].Format(time.RFC3339))
		}
	}
	if n := load.CountNaN(); n > 0 {
		return model.Alignf("align", "load holds %d NaN cells", n)
	}
	if n := gen.CountNaN(); n > 0 {
		return model.Alignf("align", "generation holds %d NaN cells", n)
	}
	return nil
}

// WindowDay restricts aligned tables to the UTC calendar day of day.
func WindowDay(load, gen *Table, day time.Time) (*Table, *Table, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	lo, hi := -1, -1
	for i, t := range load.Index {
		if !t.Before(start) && t.Before(end) {
			if lo < 0 {
				lo = i
			}
			hi = i + 1
		}
	}
	if lo < 0 {
		return nil, nil, model.Alignf("window", "no records on %s", start.Format(time.DateOnly))
	}
	return load.Slice(lo, hi), gen.Slice(lo, hi), nil
}

// IsTableFile reports whether a path has a supported tabular extension.
func IsTableFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".xlsx", ".xls":
		return true
	}
	return false
}

// Describe summarises a table for logs.
func Describe(t *Table) string {
	if t.Len() == 0 {
		return fmt.Sprintf("%d columns, empty", len(t.Columns))
	}
	return fmt.Sprintf("%d steps x %d columns, %s to %s", t.Len(), len(t.Columns),
		t.Index[0].Format(time.RFC3339), t.Index[t.Len()-1].Format(time.RFC3339))
}
