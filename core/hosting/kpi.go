package hosting

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/kilianp07/hostcap/core/grid"
	"github.com/kilianp07/hostcap/core/model"
	"github.com/kilianp07/hostcap/core/powerflow"
)

// minLoadMW is the total load under which the loss rate is reported as 0.
const minLoadMW = 1e-6

// ComputeKPI derives the step indicators from a baseline solution. A
// non-converged solution yields zero indicators.
func ComputeKPI(net *grid.Network, res powerflow.Result) model.KPI {
	if !res.Converged {
		return model.KPI{}
	}
	k := model.KPI{PTotalMW: res.SlackPMW}
	if len(res.LoadingPercent) > 0 {
		k.MaxLoadingPct = floats.Max(res.LoadingPercent)
	}
	for _, vm := range res.VmPU {
		k.VoltageDevPct = math.Max(k.VoltageDevPct, math.Abs(vm-1)*100)
	}
	if load := net.TotalLoadMW(); load > minLoadMW {
		k.LossRatePct = res.LossMW / load * 100
	}
	return k
}

// VoltageRange returns the lowest and highest bus voltage in p.u.
func VoltageRange(res powerflow.Result) (vmin, vmax float64) {
	if len(res.VmPU) == 0 {
		return math.NaN(), math.NaN()
	}
	return floats.Min(res.VmPU), floats.Max(res.VmPU)
}

// Round returns vals rounded half away from zero to places decimals.
func Round(vals []float64, places int) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = scalar.Round(v, places)
	}
	return out
}
