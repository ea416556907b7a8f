package simulation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/hostcap/core/model"
)

// Summarize aggregates the alpha* series of a run. Every step is counted
// under its bottleneck label.
func Summarize(runID string, steps []model.StepResult) model.Summary {
	s := model.Summary{RunID: runID, Steps: len(steps), BottleneckCounts: map[string]int{}}
	if len(steps) == 0 {
		return s
	}
	alphas := make([]float64, len(steps))
	for i, r := range steps {
		alphas[i] = r.Alpha
		s.BottleneckCounts[r.Bottleneck.String()]++
		if !r.Reliable {
			s.UnreliableSteps++
		}
		if r.ZeroInfeasible {
			s.ZeroInfeasibleSteps++
		}
	}
	s.AlphaMean = stat.Mean(alphas, nil)
	s.AlphaMin = floats.Min(alphas)
	s.AlphaMax = floats.Max(alphas)

	sort.Float64s(alphas)
	s.AlphaP50 = Quantile(alphas, 0.5)
	s.AlphaP90 = Quantile(alphas, 0.9)
	return s
}

// Quantile returns the p-quantile of sorted data, interpolating linearly
// between the closest ranks at position (n-1)p.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	if lo < 0 {
		return sorted[0]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
