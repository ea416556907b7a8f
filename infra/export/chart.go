package export

import (
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/hostcap/core/simulation"
)

// writeChart renders the distribution curves as an HTML page: reference bus
// import with alpha*, and the voltage envelope in kV.
func (e *Exporter) writeChart(rep *simulation.Report) (string, error) {
	xAxis := make([]string, len(rep.Steps))
	power := make([]opts.LineData, len(rep.Steps))
	alpha := make([]opts.LineData, len(rep.Steps))
	vmin := make([]opts.LineData, len(rep.Steps))
	vmax := make([]opts.LineData, len(rep.Steps))
	for i, s := range rep.Steps {
		xAxis[i] = s.Time.UTC().Format("2006-01-02 15:04")
		alpha[i] = opts.LineData{Value: s.Alpha}
		if s.BaselineConverged {
			power[i] = opts.LineData{Value: s.KPI.PTotalMW}
			vmin[i] = opts.LineData{Value: s.VminPU * rep.VBaseKV}
			vmax[i] = opts.LineData{Value: s.VmaxPU * rep.VBaseKV}
		}
	}

	flow := charts.NewLine()
	flow.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Feeder import and hosting capacity", Subtitle: rep.RunID}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "MW / alpha"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)
	flow.SetXAxis(xAxis).
		AddSeries("P_total_MW", power).
		AddSeries("HC_alpha", alpha)

	volts := charts.NewLine()
	volts.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Voltage envelope"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "kV"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)
	volts.SetXAxis(xAxis).
		AddSeries("Vmin_kV", vmin).
		AddSeries("Vmax_kV", vmax)

	page := components.NewPage()
	page.PageTitle = "hostcap " + rep.RunID
	page.AddCharts(flow, volts)

	p := e.path(CurvesChartFile)
	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	if err := page.Render(f); err != nil {
		_ = f.Close()
		return "", err
	}
	return p, f.Close()
}
