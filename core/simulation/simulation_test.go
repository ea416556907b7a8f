package simulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/hostcap/core/grid"
	"github.com/kilianp07/hostcap/core/hosting"
	"github.com/kilianp07/hostcap/core/logger"
	"github.com/kilianp07/hostcap/core/metrics"
	"github.com/kilianp07/hostcap/core/model"
	"github.com/kilianp07/hostcap/core/powerflow"
	"github.com/kilianp07/hostcap/core/timeseries"
	"github.com/kilianp07/hostcap/core/topology"
)

type recordLogger struct {
	logger.NopLogger
	mu    sync.Mutex
	infos []string
	warns []string
}

func (r *recordLogger) Infof(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, fmt.Sprintf(format, args...))
}

func (r *recordLogger) Warnf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = append(r.warns, fmt.Sprintf(format, args...))
}

func count(lines []string, sub string) int {
	n := 0
	for _, l := range lines {
		if strings.Contains(l, sub) {
			n++
		}
	}
	return n
}

type eventSink struct{ events []metrics.StepEvent }

func (e *eventSink) Publish(ev metrics.StepEvent) { e.events = append(e.events, ev) }

type memCheckpoint struct {
	steps []model.StepResult
	err   error
}

func (m *memCheckpoint) Append(r model.StepResult) error {
	if m.err != nil {
		return m.err
	}
	m.steps = append(m.steps, r)
	return nil
}

// countingSolver overloads the line above limitMW of PV and fails to
// converge when the load exceeds divergeMW.
type countingSolver struct {
	limitMW   float64
	divergeMW float64
	calls     int
}

func (c *countingSolver) Solve(net *grid.Network, _ powerflow.Options) (powerflow.Result, error) {
	c.calls++
	if net.TotalLoadMW() > c.divergeMW {
		return powerflow.Result{}, nil
	}
	return powerflow.Result{
		Converged:      true,
		VmPU:           []float64{1, 0.99, 0.98},
		LoadingPercent: []float64{net.TotalGenMW() / c.limitMW * 100, 12.346},
		LossMW:         0.01,
		SlackPMW:       net.TotalLoadMW() - net.TotalGenMW() + 0.01,
	}, nil
}

func testNetwork(t *testing.T) *grid.Network {
	t.Helper()
	net, err := grid.Build(&topology.Topology{
		Buses: []model.BusRecord{{ID: 1, Type: model.BusSlack}, {ID: 2}, {ID: 3}},
		Branches: []model.BranchRecord{
			{From: 1, To: 2, RPU: 0.01, XPU: 0.01, Status: 1},
			{From: 2, To: 3, RPU: 0.01, XPU: 0.01, Status: 1},
		},
	}, grid.Base{SBaseMVA: 100, VBaseKV: 12.66}, grid.BuildOptions{})
	require.NoError(t, err)
	return net
}

var t0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func inputs(t *testing.T, steps int) Inputs {
	idx := make([]time.Time, steps)
	pv := make([]float64, steps)
	l2 := make([]float64, steps)
	for i := range idx {
		idx[i] = t0.Add(time.Duration(i) * timeseries.DefaultStep)
		pv[i] = 0.01
		l2[i] = 0.005
	}
	return Inputs{
		Network: testNetwork(t),
		Load:    &timeseries.Table{Index: idx, Columns: []string{"1", "2", "3"}, Values: [][]float64{make([]float64, steps), l2, make([]float64, steps)}},
		Gen:     &timeseries.Table{Index: idx, Columns: []string{"PV1"}, Values: [][]float64{pv}},
		Assign:  model.PVAssignment{{Source: "PV1", Bus: 3}},
	}
}

func newTestRunner(solver powerflow.Solver, log logger.Logger, ev Publisher, cp Checkpoint) *Runner {
	checker := hosting.NewChecker(solver, hosting.DefaultLimits(), powerflow.DefaultOptions())
	return NewRunner("run-1", hosting.NewSearch(checker, grid.NewApplier(0.95), hosting.DefaultParams()), log, ev, cp)
}

func TestRunnerSimulatesEveryStep(t *testing.T) {
	solver := &countingSolver{limitMW: 1.5, divergeMW: 1e9}
	log := &recordLogger{}
	ev := &eventSink{}
	cp := &memCheckpoint{}
	r := newTestRunner(solver, log, ev, cp)

	rep, err := r.Run(context.Background(), inputs(t, 32))
	require.NoError(t, err)
	require.Len(t, rep.Steps, 32)
	assert.Equal(t, "run-1", rep.Summary.RunID)
	assert.Equal(t, 32, rep.Summary.Steps)
	assert.Equal(t, []string{"1-2", "2-3"}, rep.LineNames)
	assert.Equal(t, []int{1, 2, 3}, rep.BusIDs)

	s := rep.Steps[0]
	assert.Equal(t, t0, s.Time)
	assert.Equal(t, model.OutcomeOK, s.Baseline)
	assert.True(t, s.BaselineConverged)
	assert.InDelta(t, 1.5, s.Alpha, 2e-3)
	assert.Equal(t, model.OutcomeLineLoading, s.Bottleneck)
	assert.Equal(t, []float64{66.67, 12.35}, s.LineLoading)
	assert.Equal(t, []float64{1, 0.99, 0.98}, s.BusVoltage)
	assert.Equal(t, 0.98, s.VminPU)
	assert.InDelta(t, 0.5-1+0.01, s.KPI.PTotalMW, 1e-9)
	assert.InDelta(t, 2.0, s.KPI.VoltageDevPct, 1e-9)

	assert.Len(t, ev.events, 32)
	assert.Equal(t, 31, ev.events[31].Index)
	assert.Equal(t, 32, ev.events[31].Total)
	assert.Len(t, cp.steps, 32)
	assert.Equal(t, 2, count(log.infos, "progress"))
	assert.Equal(t, 1, count(log.infos, "first step"))
}

func TestRunnerNonConvergedBaseline(t *testing.T) {
	solver := &countingSolver{limitMW: 1.5, divergeMW: 0.1}
	log := &recordLogger{}
	rep, err := newTestRunner(solver, log, nil, nil).Run(context.Background(), inputs(t, 2))
	require.NoError(t, err)
	s := rep.Steps[0]
	assert.Equal(t, model.OutcomeNonConverge, s.Baseline)
	assert.False(t, s.BaselineConverged)
	assert.Equal(t, model.KPI{}, s.KPI)
	assert.Nil(t, s.LineLoading)
	assert.Nil(t, s.BusVoltage)
	assert.True(t, s.ZeroInfeasible)
	assert.Zero(t, s.Alpha)
	assert.Equal(t, model.OutcomeNonConverge, s.Bottleneck)
	assert.Equal(t, 2, count(log.warns, "did not converge"))
	assert.Equal(t, 2, count(log.warns, "without PV"))
	assert.Equal(t, 2, rep.Summary.ZeroInfeasibleSteps)
}

func TestRunnerResumesRecordedPrefix(t *testing.T) {
	full := &countingSolver{limitMW: 1.5, divergeMW: 1e9}
	first, err := newTestRunner(full, nil, nil, nil).Run(context.Background(), inputs(t, 6))
	require.NoError(t, err)

	solver := &countingSolver{limitMW: 1.5, divergeMW: 1e9}
	resumed := inputs(t, 6)
	resumed.Resumed = append([]model.StepResult(nil), first.Steps[:4]...)
	resumed.Resumed = append(resumed.Resumed, model.StepResult{Time: t0.Add(99 * time.Hour)})
	rep, err := newTestRunner(solver, nil, nil, nil).Run(context.Background(), resumed)
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Resumed, "mismatching entry ends the prefix")
	assert.Equal(t, first.Steps, rep.Steps)
	assert.Equal(t, 2*(full.calls/6), solver.calls, "only the two missing steps are solved")
	assert.Equal(t, first.Summary.AlphaMean, rep.Summary.AlphaMean)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := newTestRunner(&countingSolver{limitMW: 1, divergeMW: 1e9}, nil, nil, nil).Run(ctx, inputs(t, 3))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Empty(t, rep.Steps)
}

func TestRunnerCheckpointFailureIsNotFatal(t *testing.T) {
	log := &recordLogger{}
	cp := &memCheckpoint{err: errors.New("disk full")}
	rep, err := newTestRunner(&countingSolver{limitMW: 1, divergeMW: 1e9}, log, nil, cp).Run(context.Background(), inputs(t, 3))
	require.NoError(t, err)
	assert.Len(t, rep.Steps, 3)
	assert.Equal(t, 1, count(log.warns, "checkpoint disabled"))
}

func TestRunnerRejectsBadInputs(t *testing.T) {
	r := newTestRunner(&countingSolver{limitMW: 1, divergeMW: 1e9}, nil, nil, nil)
	in := inputs(t, 3)
	in.Assign = append(in.Assign, model.PVSite{Source: "PV2", Bus: 2})
	_, err := r.Run(context.Background(), in)
	var ce *model.ConfigurationError
	assert.True(t, errors.As(err, &ce))

	in = inputs(t, 3)
	in.Gen.Index = in.Gen.Index[1:]
	in.Gen.Values[0] = in.Gen.Values[0][1:]
	_, err = r.Run(context.Background(), in)
	var ae *model.DataAlignmentError
	assert.True(t, errors.As(err, &ae))
}

func TestRunnerPropagatesSolverError(t *testing.T) {
	boom := errors.New("not radial")
	r := newTestRunner(powerflow.SolverFunc(func(*grid.Network, powerflow.Options) (powerflow.Result, error) {
		return powerflow.Result{}, boom
	}), nil, nil, nil)
	_, err := r.Run(context.Background(), inputs(t, 2))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step 0")
}

func TestAssignPVDeterministic(t *testing.T) {
	cands := []int{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	a, err := AssignPV(cands, 7, 42, nil)
	require.NoError(t, err)
	b, err := AssignPV(cands, 7, 42, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	seen := map[int]bool{}
	for i, site := range a {
		assert.Equal(t, SourceID(i+1), site.Source)
		assert.Contains(t, cands, site.Bus)
		assert.False(t, seen[site.Bus], "buses are distinct")
		seen[site.Bus] = true
	}

	_, err = AssignPV(cands[:3], 7, 42, nil)
	var ce *model.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestAssignPVFixed(t *testing.T) {
	cands := []int{2, 3, 4}
	a, err := AssignPV(cands, 2, 0, map[string]int{"PV1": 4, "PV2": 2})
	require.NoError(t, err)
	assert.Equal(t, model.PVAssignment{{Source: "PV1", Bus: 4}, {Source: "PV2", Bus: 2}}, a)

	var ce *model.ConfigurationError
	_, err = AssignPV(cands, 2, 0, map[string]int{"PV1": 1, "PV2": 2})
	assert.True(t, errors.As(err, &ce), "slack bus is not a candidate")
	_, err = AssignPV(cands, 2, 0, map[string]int{"PV1": 3, "PV3": 2})
	assert.True(t, errors.As(err, &ce))
	_, err = AssignPV(cands, 3, 0, map[string]int{"PV1": 3})
	assert.True(t, errors.As(err, &ce))
}

func TestCandidateBuses(t *testing.T) {
	assert.Equal(t, []int{2, 3}, CandidateBuses(testNetwork(t)))
}

func TestSummarize(t *testing.T) {
	steps := []model.StepResult{
		{Alpha: 4, Bottleneck: model.OutcomeVoltage, Reliable: true},
		{Alpha: 1, Bottleneck: model.OutcomeLineLoading, Reliable: true},
		{Alpha: 3, Bottleneck: model.OutcomeVoltage},
		{Alpha: 0, Bottleneck: model.OutcomeVoltage, Reliable: true, ZeroInfeasible: true},
		{Alpha: 2, Bottleneck: model.OutcomeOK, Reliable: true},
	}
	s := Summarize("r", steps)
	assert.Equal(t, 5, s.Steps)
	assert.InDelta(t, 2, s.AlphaMean, 1e-12)
	assert.InDelta(t, 2, s.AlphaP50, 1e-12)
	assert.InDelta(t, 3.6, s.AlphaP90, 1e-12)
	assert.Equal(t, 0.0, s.AlphaMin)
	assert.Equal(t, 4.0, s.AlphaMax)
	assert.Equal(t, map[string]int{"voltage": 3, "line_loading": 1, "ok": 1}, s.BottleneckCounts)
	assert.Equal(t, 1, s.UnreliableSteps)
	assert.Equal(t, 1, s.ZeroInfeasibleSteps)
	assert.Equal(t, 4.0, steps[0].Alpha, "input order untouched")

	empty := Summarize("r", nil)
	assert.Zero(t, empty.Steps)
	assert.Empty(t, empty.BottleneckCounts)
}

func TestQuantileMatchesLinearInterpolation(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	assert.Equal(t, 2.5, Quantile(data, 0.5))
	assert.InDelta(t, 3.7, Quantile(data, 0.9), 1e-12)
	assert.Equal(t, 1.0, Quantile(data, 0))
	assert.Equal(t, 4.0, Quantile(data, 1))
	assert.Equal(t, 7.0, Quantile([]float64{7}, 0.9))
}
