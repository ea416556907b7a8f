package plugins

import (
	"github.com/kilianp07/hostcap/core/powerflow"
	pfinfra "github.com/kilianp07/hostcap/infra/powerflow"
)

func init() {
	_ = RegisterSolver("sweep", func(map[string]any) (powerflow.Solver, error) {
		return pfinfra.NewSweepSolver(), nil
	})
}
