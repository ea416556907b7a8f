package hosting

import (
	"fmt"

	"github.com/kilianp07/hostcap/core/grid"
	"github.com/kilianp07/hostcap/core/model"
)

// Params bounds the bisection.
type Params struct {
	AlphaMax           float64 `json:"alpha_max"`
	Tol                float64 `json:"tol"`
	MaxIterations      int     `json:"max_iterations"`
	MonotonicityProbes int     `json:"monotonicity_probes"`
}

// DefaultParams returns the search settings of the reference study.
func DefaultParams() Params {
	return Params{AlphaMax: 3.0, Tol: 1e-3, MaxIterations: 20, MonotonicityProbes: 2}
}

// Validate rejects settings the bisection cannot work with.
func (p Params) Validate() error {
	if p.AlphaMax <= 0 {
		return fmt.Errorf("alpha_max must be positive, got %v", p.AlphaMax)
	}
	if p.Tol <= 0 {
		return fmt.Errorf("tol must be positive, got %v", p.Tol)
	}
	if p.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", p.MaxIterations)
	}
	if p.MonotonicityProbes < 0 {
		return fmt.Errorf("monotonicity_probes must not be negative")
	}
	return nil
}

// StepInput is what one search needs besides the network.
type StepInput struct {
	Snapshot grid.Snapshot
	Assign   model.PVAssignment
}

// Result is the outcome of one search.
type Result struct {
	Alpha          float64       `json:"alpha"`
	Bottleneck     model.Outcome `json:"bottleneck"`
	Trials         int           `json:"trials"`
	Reliable       bool          `json:"reliable"`
	ZeroInfeasible bool          `json:"zero_infeasible"`
}

// Search finds the largest uniform PV scaling that keeps a step feasible,
// assuming feasibility is monotone in alpha. Probes above the bracket flag
// steps where that assumption visibly fails.
type Search struct {
	Checker *Checker
	Applier grid.Applier
	Params  Params
}

// NewSearch returns a Search with defaults for zero parameters.
func NewSearch(checker *Checker, applier grid.Applier, p Params) *Search {
	def := DefaultParams()
	if p.AlphaMax <= 0 {
		p.AlphaMax = def.AlphaMax
	}
	if p.Tol <= 0 {
		p.Tol = def.Tol
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = def.MaxIterations
	}
	return &Search{Checker: checker, Applier: applier, Params: p}
}

// Run searches alpha in [0, AlphaMax]. The returned alpha is feasible, or 0
// with ZeroInfeasible set when even the PV-free step violates a limit.
func (s *Search) Run(net *grid.Network, in StepInput) (Result, error) {
	p := s.Params
	res := Result{Reliable: true}

	top, err := s.trial(net, in, p.AlphaMax, &res)
	if err != nil {
		return res, err
	}
	if top.Feasible() {
		res.Alpha, res.Bottleneck = p.AlphaMax, model.OutcomeOK
		return res, nil
	}
	res.Bottleneck = top

	lo, hi, best := 0.0, p.AlphaMax, 0.0
	for i := 0; i < p.MaxIterations; i++ {
		mid := 0.5 * (lo + hi)
		out, err := s.trial(net, in, mid, &res)
		if err != nil {
			return res, err
		}
		if out.Feasible() {
			lo, best = mid, mid
		} else {
			hi, res.Bottleneck = mid, out
		}
		if hi-lo < p.Tol {
			break
		}
	}

	if best == 0 {
		zero, err := s.trial(net, in, 0, &res)
		if err != nil {
			return res, err
		}
		if !zero.Feasible() {
			res.ZeroInfeasible, res.Bottleneck = true, zero
		}
	}
	res.Alpha = best

	for k := 1; k <= p.MonotonicityProbes && hi < p.AlphaMax; k++ {
		a := hi + (p.AlphaMax-hi)*float64(k)/float64(p.MonotonicityProbes+1)
		out, err := s.trial(net, in, a, &res)
		if err != nil {
			return res, err
		}
		if out.Feasible() {
			res.Reliable = false
		}
	}
	return res, nil
}

func (s *Search) trial(net *grid.Network, in StepInput, alpha float64, res *Result) (model.Outcome, error) {
	if err := s.Applier.Apply(net, in.Snapshot, in.Assign, alpha); err != nil {
		return model.OutcomeNonConverge, err
	}
	res.Trials++
	out, _, err := s.Checker.Check(net)
	if err != nil {
		return out, fmt.Errorf("alpha %.4f: %w", alpha, err)
	}
	return out, nil
}
