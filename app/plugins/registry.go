// Package plugins holds the registries of pluggable run components.
package plugins

import (
	"github.com/kilianp07/hostcap/config"
	"github.com/kilianp07/hostcap/core/factory"
	"github.com/kilianp07/hostcap/core/powerflow"
)

// Solvers builds power-flow solvers from their configuration.
var Solvers = factory.NewRegistry[powerflow.Solver]()

// RegisterSolver adds a solver factory under name.
func RegisterSolver(name string, f factory.Factory[powerflow.Solver]) error {
	return Solvers.Register(name, f)
}

// NewSolver instantiates the solver selected by cfg.
func NewSolver(cfg config.SolverConfig) (powerflow.Solver, error) {
	return Solvers.Create(factory.ModuleConfig{Type: cfg.Type, Conf: cfg.Conf})
}
