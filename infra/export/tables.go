package export

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/kilianp07/hostcap/core/model"
	"github.com/kilianp07/hostcap/core/simulation"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// writeCSVFile writes header and records to path.
func writeCSVFile(path string, header []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		_ = f.Close()
		return err
	}
	if err := cw.WriteAll(records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// converged returns formatted values, or blanks for a step whose baseline
// did not converge.
func converged(s model.StepResult, vals ...float64) []string {
	out := make([]string, len(vals))
	if !s.BaselineConverged {
		return out
	}
	for i, v := range vals {
		out[i] = formatFloat(v)
	}
	return out
}

func (e *Exporter) writeMetrics(rep *simulation.Report) (string, error) {
	records := make([][]string, len(rep.Steps))
	for i, s := range rep.Steps {
		k := s.KPI
		records[i] = append([]string{formatTime(s.Time)},
			converged(s, k.PTotalMW, k.MaxLoadingPct, k.VoltageDevPct, k.LossRatePct)...)
		records[i] = append(records[i], s.Baseline.String())
	}
	p := e.path(MetricsFile)
	return p, writeCSVFile(p, []string{timeColumn, "P_total_MW", "max_loading_pct", "voltage_dev_pct", "loss_rate_pct", "baseline"}, records)
}

func (e *Exporter) writeCurves(rep *simulation.Report) (string, error) {
	records := make([][]string, len(rep.Steps))
	for i, s := range rep.Steps {
		records[i] = append([]string{formatTime(s.Time)},
			converged(s, s.KPI.PTotalMW, s.VminPU*rep.VBaseKV, s.VmaxPU*rep.VBaseKV)...)
		records[i] = append(records[i], formatFloat(s.Alpha))
	}
	p := e.path(CurvesFile)
	return p, writeCSVFile(p, []string{timeColumn, "P_total_MW", "Vmin_kV", "Vmax_kV", "HC_alpha"}, records)
}

func (e *Exporter) writeHC(rep *simulation.Report) (string, error) {
	records := make([][]string, len(rep.Steps))
	for i, s := range rep.Steps {
		records[i] = []string{
			formatTime(s.Time),
			formatFloat(s.Alpha),
			s.Bottleneck.String(),
			s.Baseline.String(),
			strconv.FormatBool(s.Reliable),
			strconv.FormatBool(s.ZeroInfeasible),
			strconv.Itoa(s.Trials),
		}
	}
	p := e.path(HCFile)
	return p, writeCSVFile(p, []string{timeColumn, "alpha", "bottleneck", "baseline", "reliable", "zero_infeasible", "trials"}, records)
}

// writeRanking ranks the lines of the final step by loading, highest first.
func (e *Exporter) writeRanking(rep *simulation.Report) (string, error) {
	type entry struct {
		line    string
		loading float64
	}
	var ranking []entry
	if n := len(rep.Steps); n > 0 {
		last := rep.Steps[n-1]
		if last.LineLoading == nil {
			e.log.Warnf("final step %s did not converge, line ranking is empty", formatTime(last.Time))
		}
		for i, v := range last.LineLoading {
			if i < len(rep.LineNames) {
				ranking = append(ranking, entry{rep.LineNames[i], v})
			}
		}
	}
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].loading > ranking[j].loading })
	records := make([][]string, len(ranking))
	for i, r := range ranking {
		records[i] = []string{r.line, formatFloat(r.loading)}
	}
	p := e.path(RankingFile)
	return p, writeCSVFile(p, []string{"line", "loading_pct"}, records)
}
