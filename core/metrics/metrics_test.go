package metrics_test

import (
	"errors"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/hostcap/core/metrics"
	"github.com/kilianp07/hostcap/core/model"
	_ "github.com/kilianp07/hostcap/infra/metrics"
)

type recordSink struct {
	steps     int
	summaries int
	err       error
}

func (r *recordSink) RecordStep(metrics.StepEvent) error {
	r.steps++
	return r.err
}

func (r *recordSink) RecordSummary(metrics.SummaryEvent) error {
	r.summaries++
	return r.err
}

type stepOnlySink struct{ steps int }

func (s *stepOnlySink) RecordStep(metrics.StepEvent) error {
	s.steps++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &stepOnlySink{}
	m := metrics.NewMultiSink(s1, s2)
	if err := m.RecordStep(metrics.StepEvent{}); err != nil {
		t.Fatalf("record step: %v", err)
	}
	if err := m.RecordSummary(metrics.SummaryEvent{}); err != nil {
		t.Fatalf("record summary: %v", err)
	}
	if s1.steps != 1 || s2.steps != 1 || s1.summaries != 1 {
		t.Fatalf("events not forwarded: %+v %+v", s1, s2)
	}
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	errA := errors.New("influx down")
	failing := &recordSink{err: errA}
	ok := &recordSink{}
	m := metrics.NewMultiSink(failing, ok)
	err := m.RecordStep(metrics.StepEvent{})
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if ok.steps != 1 {
		t.Fatalf("failing sink stopped the fan-out")
	}
}

func TestNewMetricsSinkFromYAML(t *testing.T) {
	var cfg metrics.Config
	doc := `
sinks:
  - type: nop
  - type: nop
prometheus_addr: ":9090"
`
	if err := yaml.Unmarshal([]byte(doc), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.PrometheusAddr != ":9090" {
		t.Fatalf("addr = %q", cfg.PrometheusAddr)
	}
	sink, err := metrics.NewMetricsSink(cfg.Sinks)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := sink.(*metrics.MultiSink); !ok {
		t.Fatalf("expected MultiSink, got %T", sink)
	}
}

func TestNewMetricsSinkDefaultsToNop(t *testing.T) {
	sink, err := metrics.NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := sink.(metrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", sink)
	}
}

func TestNewMetricsSinkUnknownType(t *testing.T) {
	var cfg metrics.Config
	if err := yaml.Unmarshal([]byte("sinks: [{type: statsd}]"), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := metrics.NewMetricsSink(cfg.Sinks); err == nil {
		t.Fatal("expected error for unknown sink type")
	}
}

func TestStepEventFrom(t *testing.T) {
	now := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	r := model.StepResult{Time: now, Alpha: 2.5, Bottleneck: model.OutcomeVoltage, Trials: 9, Reliable: true}
	ev := metrics.StepEventFrom("run", 3, 10, r, time.Millisecond)
	if ev.RunID != "run" || ev.Index != 3 || ev.Total != 10 || ev.Alpha != 2.5 || ev.Trials != 9 || !ev.Time.Equal(now) {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Bottleneck != model.OutcomeVoltage || !ev.Reliable {
		t.Fatalf("outcome not copied: %+v", ev)
	}
}
