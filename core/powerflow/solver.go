// Package powerflow defines the boundary to the AC power-flow solver. The
// engine only depends on Solver; implementations live under infra.
package powerflow

import "github.com/kilianp07/hostcap/core/grid"

// Options bounds one solve.
type Options struct {
	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`
}

// DefaultOptions mirrors the iteration budget used by the original study.
func DefaultOptions() Options { return Options{MaxIterations: 50, Tolerance: 1e-8} }

// Result is the solution of one power flow. Slices are indexed like
// Network.Buses and Network.Lines.
type Result struct {
	Converged      bool
	Iterations     int
	VmPU           []float64
	VaDeg          []float64
	LoadingPercent []float64
	LineLossMW     []float64
	LossMW         float64
	// SlackPMW is the active power drawn from the reference bus into the network.
	SlackPMW   float64
	SlackQMvar float64
}

// Solver computes a power flow for the current injections of a network.
// Non-convergence is reported through Result.Converged, not as an error;
// errors are reserved for networks the solver cannot handle at all.
type Solver interface {
	Solve(net *grid.Network, opts Options) (Result, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(net *grid.Network, opts Options) (Result, error)

// Solve calls f.
func (f SolverFunc) Solve(net *grid.Network, opts Options) (Result, error) { return f(net, opts) }
