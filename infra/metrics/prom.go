package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/hostcap/core/metrics"
	"github.com/kilianp07/hostcap/core/model"
)

// PromSink records hosting-capacity steps in Prometheus metrics.
type PromSink struct {
	steps      *prometheus.CounterVec
	alpha      prometheus.Gauge
	alphaDist  prometheus.Histogram
	trials     prometheus.Counter
	voltage    *prometheus.GaugeVec
	importMW   prometheus.Gauge
	unreliable prometheus.Counter
	progress   prometheus.Gauge
	dropped    prometheus.Gauge
}

// NewPromSink registers hosting metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.steps, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hosting_steps_total",
		Help: "Simulated time steps by binding constraint",
	}, []string{"bottleneck", "baseline"})); err != nil {
		return nil, err
	}
	if s.alpha, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hosting_alpha",
		Help: "Hosting capacity scaling factor of the last simulated step",
	})); err != nil {
		return nil, err
	}
	if s.alphaDist, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hosting_alpha_distribution",
		Help:    "Distribution of the hosting capacity scaling factor",
		Buckets: prometheus.LinearBuckets(0, 0.25, 13),
	})); err != nil {
		return nil, err
	}
	if s.trials, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hosting_powerflow_trials_total",
		Help: "Power flow solutions run by the alpha search",
	})); err != nil {
		return nil, err
	}
	if s.voltage, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hosting_baseline_voltage_pu",
		Help: "Extreme bus voltages of the last baseline power flow",
	}, []string{"bound"})); err != nil {
		return nil, err
	}
	if s.importMW, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hosting_baseline_import_mw",
		Help: "Active power drawn from the reference bus at alpha 1",
	})); err != nil {
		return nil, err
	}
	if s.unreliable, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hosting_unreliable_steps_total",
		Help: "Steps where a feasible alpha was found above the bisection bracket",
	})); err != nil {
		return nil, err
	}
	if s.progress, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hosting_run_progress_ratio",
		Help: "Fraction of the run's time steps simulated",
	})); err != nil {
		return nil, err
	}
	if s.dropped, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hosting_dropped_events",
		Help: "Step events lost by the event bus during the last run",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing an identical collector registered before.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordStep updates the step counters and gauges.
func (s *PromSink) RecordStep(ev coremetrics.StepEvent) error {
	s.steps.WithLabelValues(ev.Bottleneck.String(), ev.Baseline.String()).Inc()
	s.alpha.Set(ev.Alpha)
	s.alphaDist.Observe(ev.Alpha)
	s.trials.Add(float64(ev.Trials))
	if !ev.Reliable {
		s.unreliable.Inc()
	}
	if ev.Baseline != model.OutcomeNonConverge {
		s.voltage.WithLabelValues("min").Set(ev.VminPU)
		s.voltage.WithLabelValues("max").Set(ev.VmaxPU)
		s.importMW.Set(ev.KPI.PTotalMW)
	}
	if ev.Total > 0 {
		s.progress.Set(float64(ev.Index+1) / float64(ev.Total))
	}
	return nil
}

// RecordSummary publishes the dropped event count of the finished run.
func (s *PromSink) RecordSummary(ev coremetrics.SummaryEvent) error {
	s.dropped.Set(float64(ev.DroppedEvents))
	return nil
}
