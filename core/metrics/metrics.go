package metrics

import (
	"time"

	"github.com/kilianp07/hostcap/core/model"
)

// StepEvent is published once per simulated timestamp.
type StepEvent struct {
	RunID          string
	Index          int
	Total          int
	Time           time.Time
	Baseline       model.Outcome
	KPI            model.KPI
	VminPU         float64
	VmaxPU         float64
	Alpha          float64
	Bottleneck     model.Outcome
	Reliable       bool
	ZeroInfeasible bool
	Trials         int
	Elapsed        time.Duration
}

// StepEventFrom builds the event of a step result.
func StepEventFrom(runID string, index, total int, r model.StepResult, elapsed time.Duration) StepEvent {
	return StepEvent{
		RunID:          runID,
		Index:          index,
		Total:          total,
		Time:           r.Time,
		Baseline:       r.Baseline,
		KPI:            r.KPI,
		VminPU:         r.VminPU,
		VmaxPU:         r.VmaxPU,
		Alpha:          r.Alpha,
		Bottleneck:     r.Bottleneck,
		Reliable:       r.Reliable,
		ZeroInfeasible: r.ZeroInfeasible,
		Trials:         r.Trials,
		Elapsed:        elapsed,
	}
}

// MetricsSink records step events for observability purposes.
type MetricsSink interface {
	RecordStep(ev StepEvent) error
}

// SummaryEvent closes a run.
type SummaryEvent struct {
	Summary       model.Summary
	DroppedEvents uint64
	Duration      time.Duration
	Time          time.Time
}

// SummaryRecorder records the end-of-run summary.
type SummaryRecorder interface {
	RecordSummary(ev SummaryEvent) error
}

// Closer is implemented by sinks holding connections.
type Closer interface {
	Close() error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordStep(StepEvent) error       { return nil }
func (NopSink) RecordSummary(SummaryEvent) error { return nil }
