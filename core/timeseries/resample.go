package timeseries

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/interp"
)

// Coverage reports how many cells fell outside the span of their source
// samples and were set to 0.
type Coverage struct {
	Cells  int
	Filled int
}

// Add accumulates another report.
func (c *Coverage) Add(o Coverage) {
	c.Cells += o.Cells
	c.Filled += o.Filled
}

// Grid returns the fixed-step timestamps from floor(first) to floor(last).
func Grid(first, last time.Time, step time.Duration) ([]time.Time, error) {
	if step <= 0 {
		return nil, fmt.Errorf("grid step must be positive, got %s", step)
	}
	start, end := first.Truncate(step), last.Truncate(step)
	if end.Before(start) {
		return nil, fmt.Errorf("grid end %s before start %s", end, start)
	}
	n := int(end.Sub(start)/step) + 1
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out, nil
}

// Regrid resamples every column onto the fixed-step grid covering index.
func Regrid(index []time.Time, cols [][]float64, step time.Duration) ([]time.Time, [][]float64, Coverage, error) {
	if len(index) == 0 {
		return nil, nil, Coverage{}, fmt.Errorf("regrid: empty index")
	}
	grid, err := Grid(index[0], index[len(index)-1], step)
	if err != nil {
		return nil, nil, Coverage{}, fmt.Errorf("regrid: %w", err)
	}
	out := make([][]float64, len(cols))
	var cov Coverage
	for i, col := range cols {
		var c Coverage
		out[i], c = Interpolate(index, col, grid)
		cov.Add(c)
	}
	return grid, out, cov, nil
}

// Interpolate evaluates the time-linear interpolation of the non-NaN samples
// of (index, values) at every target. Targets outside the sample span get 0.
func Interpolate(index []time.Time, values []float64, targets []time.Time) ([]float64, Coverage) {
	out := make([]float64, len(targets))
	cov := Coverage{Cells: len(targets)}
	if len(targets) == 0 {
		return out, cov
	}
	origin := targets[0]
	xs := make([]float64, 0, len(values))
	ys := make([]float64, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		xs = append(xs, index[i].Sub(origin).Seconds())
		ys = append(ys, v)
	}

	switch len(xs) {
	case 0:
		cov.Filled = len(targets)
		return out, cov
	case 1:
		for i, t := range targets {
			if x := t.Sub(origin).Seconds(); x == xs[0] {
				out[i] = ys[0]
			} else {
				cov.Filled++
			}
		}
		return out, cov
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		// Fit only fails on non-increasing abscissae, which indexRows rules out.
		cov.Filled = len(targets)
		return out, cov
	}
	lo, hi := xs[0], xs[len(xs)-1]
	for i, t := range targets {
		x := t.Sub(origin).Seconds()
		if x < lo || x > hi {
			cov.Filled++
			continue
		}
		out[i] = pl.Predict(x)
	}
	return out, cov
}
