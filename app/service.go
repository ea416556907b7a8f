// Package app wires configuration, data sources, the simulation runner and
// the exporters into one hosting-capacity run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/hostcap/app/plugins"
	"github.com/kilianp07/hostcap/config"
	"github.com/kilianp07/hostcap/core/grid"
	"github.com/kilianp07/hostcap/core/hosting"
	coremetrics "github.com/kilianp07/hostcap/core/metrics"
	"github.com/kilianp07/hostcap/core/model"
	coremon "github.com/kilianp07/hostcap/core/monitoring"
	"github.com/kilianp07/hostcap/core/powerflow"
	"github.com/kilianp07/hostcap/core/simulation"
	"github.com/kilianp07/hostcap/core/timeseries"
	"github.com/kilianp07/hostcap/core/topology"
	"github.com/kilianp07/hostcap/infra/checkpoint"
	"github.com/kilianp07/hostcap/infra/export"
	"github.com/kilianp07/hostcap/infra/logger"
	"github.com/kilianp07/hostcap/infra/metrics"
	"github.com/kilianp07/hostcap/infra/monitoring"
	_ "github.com/kilianp07/hostcap/infra/mqtt"
	"github.com/kilianp07/hostcap/infra/tabular"
	"github.com/kilianp07/hostcap/internal/eventbus"
)

// Service orchestrates one hosting-capacity run.
type Service struct {
	cfg      *config.Config
	runID    string
	log      logger.Logger
	monitor  coremon.Monitor
	solver   powerflow.Solver
	source   timeseries.TableSource
	exporter *export.Exporter
	logFile  io.Closer
}

// Plan is everything a run needs, loaded and validated.
type Plan struct {
	Network *grid.Network
	Assign  model.PVAssignment
	Load    *timeseries.Table
	Gen     *timeseries.Table
	Sources []timeseries.SourceReport
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	closer, err := logger.Configure(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	solver, err := plugins.NewSolver(cfg.Solver)
	if err != nil {
		return nil, &model.ConfigurationError{Op: "solver", Err: err}
	}
	log := logger.New("service")
	return &Service{
		cfg:     cfg,
		runID:   uuid.NewString(),
		log:     log,
		monitor: mon,
		solver:  solver,
		source:  tabular.NewSource(logger.New("tabular")),
		exporter: export.New(export.Options{
			Dir:          cfg.Output.Dir,
			MatrixFormat: cfg.Output.MatrixFormat,
			Chart:        cfg.Output.Chart,
		}, logger.New("export")),
		logFile: closer,
	}, nil
}

// RunID identifies this run in logs, metrics and the summary.
func (s *Service) RunID() string { return s.runID }

// Prepare builds the network, assigns PV sites and reads the aligned series.
func (s *Service) Prepare() (*Plan, error) {
	topo, err := topology.ParseFile(s.cfg.Grid.Topology)
	if err != nil {
		return nil, err
	}
	net, err := grid.Build(topo,
		grid.Base{SBaseMVA: s.cfg.Grid.SBaseMVA, VBaseKV: s.cfg.Grid.VBaseKV},
		grid.BuildOptions{DefaultMaxIkA: s.cfg.Grid.DefaultMaxIkA})
	if err != nil {
		return nil, err
	}
	s.log.Infof("network %s: %d buses, %d lines", s.cfg.Grid.Topology, len(net.Buses), len(net.Lines))

	assign, err := simulation.AssignPV(simulation.CandidateBuses(net), s.cfg.PV.Count, s.cfg.PV.Seed, s.cfg.PV.Assignment)
	if err != nil {
		return nil, err
	}
	for _, site := range assign {
		s.log.Infof("%s connected at bus %d", site.Source, site.Bus)
	}

	aligner := timeseries.NewAligner(s.cfg.Data.Step,
		timeseries.UnitRule{Threshold: s.cfg.Data.UnitThreshold, SBaseMVA: s.cfg.Grid.SBaseMVA},
		logger.New("timeseries"))
	raw, err := s.readLoadTable()
	if err != nil {
		return nil, err
	}
	columns := s.cfg.Data.LoadColumns
	if columns == 0 {
		columns = len(net.Buses)
	}
	load, _, err := aligner.ReadLoad(raw, columns)
	if err != nil {
		return nil, err
	}
	if err := checkLoadBuses(net, load); err != nil {
		return nil, err
	}
	gen, reports, err := aligner.ReadGeneration(s.source, s.cfg.Data.PV, s.cfg.PV.Count, load.Index)
	if err != nil {
		return nil, err
	}
	if err := timeseries.Align(load, gen); err != nil {
		return nil, err
	}
	day, err := s.cfg.Data.Day()
	if err != nil {
		return nil, &model.ConfigurationError{Op: "window", Err: err}
	}
	if !day.IsZero() {
		if load, gen, err = timeseries.WindowDay(load, gen, day); err != nil {
			return nil, err
		}
	}
	s.log.Infof("load %s", timeseries.Describe(load))
	s.log.Infof("generation %s", timeseries.Describe(gen))
	return &Plan{Network: net, Assign: assign, Load: load, Gen: gen, Sources: reports}, nil
}

// checkLoadBuses rejects load columns that map to a bus missing from the
// network.
func checkLoadBuses(net *grid.Network, load *timeseries.Table) error {
	buses, err := timeseries.BusColumns(load)
	if err != nil {
		return &model.ConfigurationError{Op: "read load", Err: err}
	}
	var missing []int
	for _, id := range buses {
		if _, ok := net.Index(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return model.Configf("read load", "load columns map to buses %v, which are not in the network", missing)
	}
	return nil
}

func (s *Service) readLoadTable() (*timeseries.RawTable, error) {
	refs, err := s.source.List(s.cfg.Data.Load)
	if err != nil {
		return nil, &model.ConfigurationError{Op: "read load", Err: err}
	}
	if len(refs) == 0 {
		return nil, model.Configf("read load", "no table found at %s", s.cfg.Data.Load)
	}
	if len(refs) > 1 {
		s.log.Warnf("load %s holds %d tables, using %s", s.cfg.Data.Load, len(refs), refs[0])
	}
	raw, err := s.source.Read(refs[0])
	if err != nil {
		return nil, &model.ConfigurationError{Op: "read load", Err: err}
	}
	return raw, nil
}

// Run prepares the inputs, simulates every step and writes the artifacts.
// On cancellation the steps done so far are still exported and ctx.Err() is
// returned.
func (s *Service) Run(ctx context.Context) (*simulation.Report, error) {
	defer s.monitor.Recover()
	rep, err := s.run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		coremon.CaptureFatal(s.monitor, "run", err)
	}
	return rep, err
}

func (s *Service) run(ctx context.Context) (*simulation.Report, error) {
	plan, err := s.Prepare()
	if err != nil {
		return nil, err
	}
	mapping, err := s.exporter.WriteMapping(plan.Assign)
	if err != nil {
		return nil, err
	}
	s.log.Infof("PV mapping written to %s", mapping)

	var resumed []model.StepResult
	var cp simulation.Checkpoint
	if s.cfg.Checkpoint.Path != "" {
		store, steps, err := checkpoint.Open(s.cfg.Checkpoint.Path, s.fingerprint(plan), s.cfg.Checkpoint.Resume, logger.New("checkpoint"))
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := store.Close(); err != nil {
				s.log.Warnf("checkpoint close: %v", err)
			}
		}()
		resumed, cp = steps, store
	}

	sink, err := coremetrics.NewMetricsSink(s.cfg.Metrics.Sinks)
	if err != nil {
		return nil, &model.ConfigurationError{Op: "metrics", Err: err}
	}
	defer func() {
		if c, ok := sink.(coremetrics.Closer); ok {
			if err := c.Close(); err != nil {
				s.log.Warnf("metrics sink close: %v", err)
			}
		}
	}()
	promCtx, stopProm := context.WithCancel(context.Background())
	defer stopProm()
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(promCtx, addr, logger.New("prometheus")); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	bus := eventbus.NewTypedBuffered[coremetrics.StepEvent](s.cfg.Events.Buffer)
	collected := metrics.StartStepCollector(context.Background(), bus, sink, logger.New("metrics"))

	checker := hosting.NewChecker(s.solver, s.cfg.Limits, s.cfg.PowerFlow())
	search := hosting.NewSearch(checker, grid.NewApplier(s.cfg.Injection.PowerFactor), s.cfg.Search)
	runner := simulation.NewRunner(s.runID, search, logger.New("simulation"), bus, cp)
	s.log.Infof("run %s: %d steps, alpha in [0, %g]", s.runID, plan.Load.Len(), s.cfg.Search.AlphaMax)

	rep, runErr := runner.Run(ctx, simulation.Inputs{
		Network: plan.Network,
		Load:    plan.Load,
		Gen:     plan.Gen,
		Assign:  plan.Assign,
		Resumed: resumed,
	})
	bus.Close()
	<-collected
	if rep == nil {
		return nil, runErr
	}

	files, err := s.exporter.Write(rep)
	if err != nil {
		return rep, errors.Join(runErr, err)
	}
	s.log.Infof("%d artifacts written to %s", len(files), s.exporter.Dir())

	if rec, ok := sink.(coremetrics.SummaryRecorder); ok {
		ev := coremetrics.SummaryEvent{
			Summary:       rep.Summary,
			DroppedEvents: bus.Dropped(),
			Duration:      rep.Finished.Sub(rep.Started),
			Time:          rep.Finished,
		}
		if err := rec.RecordSummary(ev); err != nil {
			s.log.Warnf("metrics summary: %v", err)
		}
	}
	if n := bus.Dropped(); n > 0 {
		s.log.Warnf("%d step events dropped by slow metrics sinks", n)
	}
	sum := rep.Summary
	s.log.Infof("alpha* mean %.3f p50 %.3f p90 %.3f over %d steps, %d unreliable",
		sum.AlphaMean, sum.AlphaP50, sum.AlphaP90, sum.Steps, sum.UnreliableSteps)
	return rep, runErr
}

// fingerprint covers every setting that changes step results.
func (s *Service) fingerprint(plan *Plan) string {
	c := s.cfg
	parts := []string{
		c.Grid.Topology,
		strconv.FormatFloat(c.Grid.SBaseMVA, 'g', -1, 64),
		strconv.FormatFloat(c.Grid.VBaseKV, 'g', -1, 64),
		strconv.FormatFloat(c.Grid.DefaultMaxIkA, 'g', -1, 64),
		c.Data.Load,
		c.Data.PV,
		c.Data.Step.String(),
		c.Data.RunDay,
		fmt.Sprintf("%v", plan.Assign.Map()),
		fmt.Sprintf("%+v", c.Limits),
		fmt.Sprintf("%+v", c.Search),
		fmt.Sprintf("%+v", c.PowerFlow()),
		c.Solver.Type,
		strconv.FormatFloat(c.Injection.PowerFactor, 'g', -1, 64),
		timeseries.Describe(plan.Load),
	}
	return checkpoint.Fingerprint(parts...)
}

// Close flushes error reports and the log file.
func (s *Service) Close() error {
	s.monitor.Flush(2 * time.Second)
	if s.logFile != nil {
		return s.logFile.Close()
	}
	return nil
}
