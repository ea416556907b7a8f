// Package simulation drives a hosting-capacity run: one baseline power flow
// and one alpha search per timestamp, in order, over a single network.
package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/hostcap/core/grid"
	"github.com/kilianp07/hostcap/core/hosting"
	"github.com/kilianp07/hostcap/core/logger"
	"github.com/kilianp07/hostcap/core/metrics"
	"github.com/kilianp07/hostcap/core/model"
	"github.com/kilianp07/hostcap/core/timeseries"
)

// DefaultProgressEvery is the step interval of progress logs.
const DefaultProgressEvery = 16

// Publisher receives one event per simulated step. Implementations must not
// block.
type Publisher interface {
	Publish(ev metrics.StepEvent)
}

// Checkpoint persists step results as they are produced.
type Checkpoint interface {
	Append(r model.StepResult) error
}

// Inputs is everything a run reads. Load and Gen must be aligned; Gen
// columns follow Assign.
type Inputs struct {
	Network *grid.Network
	Load    *timeseries.Table
	Gen     *timeseries.Table
	Assign  model.PVAssignment
	// Resumed holds steps recovered from a checkpoint. The contiguous
	// prefix matching the load index is reused instead of recomputed.
	Resumed []model.StepResult
}

// Report is the in-memory result of a run, consumed by exporters.
type Report struct {
	RunID     string
	Steps     []model.StepResult
	Summary   model.Summary
	LineNames []string
	BusIDs    []int
	Assign    model.PVAssignment
	VBaseKV   float64
	Resumed   int
	Started   time.Time
	Finished  time.Time
}

// Runner executes the per-step loop.
type Runner struct {
	search        *hosting.Search
	log           logger.Logger
	events        Publisher
	checkpoint    Checkpoint
	runID         string
	progressEvery int
}

// NewRunner creates a Runner. events and checkpoint may be nil.
func NewRunner(runID string, search *hosting.Search, log logger.Logger, events Publisher, checkpoint Checkpoint) *Runner {
	return &Runner{
		search:        search,
		log:           logger.OrNop(log),
		events:        events,
		checkpoint:    checkpoint,
		runID:         runID,
		progressEvery: DefaultProgressEvery,
	}
}

// SetProgressEvery changes the progress log interval; n <= 0 disables it.
func (r *Runner) SetProgressEvery(n int) { r.progressEvery = n }

// Run simulates every timestamp of in.Load in order. Cancellation is
// honoured between steps; the partial report is returned with ctx.Err().
func (r *Runner) Run(ctx context.Context, in Inputs) (*Report, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	buses, err := timeseries.BusColumns(in.Load)
	if err != nil {
		return nil, model.Configf("run", "%v", err)
	}
	net := in.Network
	total := in.Load.Len()
	rep := &Report{
		RunID:     r.runID,
		Steps:     make([]model.StepResult, 0, total),
		LineNames: net.LineNames(),
		BusIDs:    net.BusIDs(),
		Assign:    in.Assign,
		VBaseKV:   net.Base.VBaseKV,
		Started:   time.Now(),
	}

	for _, prev := range in.Resumed {
		i := len(rep.Steps)
		if i >= total || !prev.Time.Equal(in.Load.Index[i]) {
			break
		}
		rep.Steps = append(rep.Steps, prev)
	}
	rep.Resumed = len(rep.Steps)
	if rep.Resumed > 0 {
		r.log.Infof("resuming after %d recorded steps", rep.Resumed)
	}

	snap := grid.Snapshot{
		LoadBus: buses,
		LoadPU:  make([]float64, 0, len(buses)),
		PV:      make([]float64, 0, len(in.Assign)),
	}
	checkpoint := r.checkpoint
	for i := rep.Resumed; i < total; i++ {
		if err := ctx.Err(); err != nil {
			rep.finish()
			return rep, err
		}
		begin := time.Now()
		snap.LoadPU = in.Load.Row(i, snap.LoadPU)
		snap.PV = in.Gen.Row(i, snap.PV)

		step, err := r.step(net, in.Load.Index[i], snap, in.Assign)
		if err != nil {
			rep.finish()
			return rep, fmt.Errorf("step %d (%s): %w", i, in.Load.Index[i].Format(time.RFC3339), err)
		}
		if i == rep.Resumed {
			r.log.Infof("first step %s: baseline %s, vmin %.4f vmax %.4f p.u.",
				step.Time.Format(time.RFC3339), step.Baseline, step.VminPU, step.VmaxPU)
		}
		rep.Steps = append(rep.Steps, step)

		if r.events != nil {
			r.events.Publish(metrics.StepEventFrom(r.runID, i, total, step, time.Since(begin)))
		}
		if checkpoint != nil {
			if err := checkpoint.Append(step); err != nil {
				r.log.Warnf("checkpoint disabled: %v", err)
				checkpoint = nil
			}
		}
		if n := i + 1; r.progressEvery > 0 && n%r.progressEvery == 0 {
			r.log.Infof("progress %d/%d at %s: alpha* %.3f, bottleneck %s",
				n, total, step.Time.Format(time.RFC3339), step.Alpha, step.Bottleneck)
		}
	}
	rep.finish()
	return rep, nil
}

func (rep *Report) finish() {
	rep.Finished = time.Now()
	rep.Summary = Summarize(rep.RunID, rep.Steps)
}

func (r *Runner) step(net *grid.Network, ts time.Time, snap grid.Snapshot, assign model.PVAssignment) (model.StepResult, error) {
	if err := r.search.Applier.Apply(net, snap, assign, 1); err != nil {
		return model.StepResult{}, err
	}
	baseline, res, err := r.search.Checker.Check(net)
	if err != nil {
		return model.StepResult{}, err
	}
	step := model.StepResult{
		Time:              ts,
		Baseline:          baseline,
		BaselineConverged: res.Converged,
		KPI:               hosting.ComputeKPI(net, res),
	}
	if res.Converged {
		step.VminPU, step.VmaxPU = hosting.VoltageRange(res)
		step.LineLoading = hosting.Round(res.LoadingPercent, 2)
		step.BusVoltage = hosting.Round(res.VmPU, 4)
	} else {
		r.log.Warnf("%s: baseline power flow did not converge", ts.Format(time.RFC3339))
	}

	hc, err := r.search.Run(net, hosting.StepInput{Snapshot: snap, Assign: assign})
	if err != nil {
		return model.StepResult{}, err
	}
	step.Alpha = hc.Alpha
	step.Bottleneck = hc.Bottleneck
	step.Reliable = hc.Reliable
	step.ZeroInfeasible = hc.ZeroInfeasible
	step.Trials = hc.Trials
	if hc.ZeroInfeasible {
		r.log.Warnf("%s: limits violated without PV (%s), alpha* reported as 0", ts.Format(time.RFC3339), hc.Bottleneck)
	}
	if !hc.Reliable {
		r.log.Warnf("%s: feasible alpha found above the bisection bracket, alpha* %.3f may be low", ts.Format(time.RFC3339), hc.Alpha)
	}
	r.log.Debugw("step", map[string]any{
		"time":       ts,
		"baseline":   baseline.String(),
		"alpha":      hc.Alpha,
		"bottleneck": hc.Bottleneck.String(),
		"trials":     hc.Trials,
	})
	return step, nil
}

func validate(in Inputs) error {
	switch {
	case in.Network == nil:
		return model.Configf("run", "no network")
	case in.Load == nil || in.Gen == nil:
		return model.Configf("run", "load and generation tables are required")
	case len(in.Gen.Columns) != len(in.Assign):
		return model.Configf("run", "%d generation columns for %d PV sites", len(in.Gen.Columns), len(in.Assign))
	}
	return timeseries.Align(in.Load, in.Gen)
}
