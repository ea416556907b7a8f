// Package hosting classifies power-flow solutions against operating limits
// and searches the largest feasible PV scaling of a time step.
package hosting

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/hostcap/core/grid"
	"github.com/kilianp07/hostcap/core/model"
	"github.com/kilianp07/hostcap/core/powerflow"
)

// Limits is the operating envelope of the feeder.
type Limits struct {
	VMin           float64 `json:"vmin_pu"`
	VMax           float64 `json:"vmax_pu"`
	LineLoadingMax float64 `json:"line_loading_max"`
	VoltageTol     float64 `json:"voltage_tol"`
	LoadingTol     float64 `json:"loading_tol"`
}

// DefaultLimits returns the statutory band and thermal limit.
func DefaultLimits() Limits {
	return Limits{VMin: 0.95, VMax: 1.05, LineLoadingMax: 100, VoltageTol: 1e-6, LoadingTol: 1e-3}
}

// Validate rejects inverted or empty bands.
func (l Limits) Validate() error {
	if l.VMin <= 0 || l.VMax <= l.VMin {
		return fmt.Errorf("invalid voltage band [%v, %v]", l.VMin, l.VMax)
	}
	if l.LineLoadingMax <= 0 {
		return fmt.Errorf("line loading limit must be positive, got %v", l.LineLoadingMax)
	}
	if l.VoltageTol < 0 || l.LoadingTol < 0 {
		return fmt.Errorf("tolerances must not be negative")
	}
	return nil
}

// Checker runs a power flow and classifies it.
type Checker struct {
	Solver  powerflow.Solver
	Limits  Limits
	Options powerflow.Options
}

// NewChecker returns a Checker over solver.
func NewChecker(solver powerflow.Solver, limits Limits, opts powerflow.Options) *Checker {
	return &Checker{Solver: solver, Limits: limits, Options: opts}
}

// Check solves the current injections of net. Solver errors are returned
// as errors; non-convergence is an outcome.
func (c *Checker) Check(net *grid.Network) (model.Outcome, powerflow.Result, error) {
	res, err := c.Solver.Solve(net, c.Options)
	if err != nil {
		return model.OutcomeNonConverge, res, fmt.Errorf("power flow: %w", err)
	}
	return c.Classify(res), res, nil
}

// Classify maps a solution to the first violated limit: convergence, then
// voltage, then line loading.
func (c *Checker) Classify(res powerflow.Result) model.Outcome {
	if !res.Converged {
		return model.OutcomeNonConverge
	}
	l := c.Limits
	if len(res.VmPU) > 0 {
		if floats.Min(res.VmPU) < l.VMin-l.VoltageTol || floats.Max(res.VmPU) > l.VMax+l.VoltageTol {
			return model.OutcomeVoltage
		}
	}
	if len(res.LoadingPercent) > 0 && floats.Max(res.LoadingPercent) > l.LineLoadingMax+l.LoadingTol {
		return model.OutcomeLineLoading
	}
	return model.OutcomeOK
}
