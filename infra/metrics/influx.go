package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/hostcap/core/metrics"
	"github.com/kilianp07/hostcap/core/model"
	"github.com/kilianp07/hostcap/infra/logger"
)

// InfluxSink writes step events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordStep writes one hosting_step point per simulated timestamp.
func (s *InfluxSink) RecordStep(ev coremetrics.StepEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, stepPoint(ev))
}

// RecordSummary writes the run summary as a hosting_summary point.
func (s *InfluxSink) RecordSummary(ev coremetrics.SummaryEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, summaryPoint(ev))
}

// Close releases the client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func stepPoint(ev coremetrics.StepEvent) *write.Point {
	p := write.NewPointWithMeasurement("hosting_step").
		AddTag("run_id", ev.RunID).
		AddTag("bottleneck", ev.Bottleneck.String()).
		AddTag("baseline", ev.Baseline.String()).
		AddTag("reliable", strconv.FormatBool(ev.Reliable)).
		AddField("alpha", round3(ev.Alpha)).
		AddField("trials", ev.Trials).
		AddField("zero_infeasible", ev.ZeroInfeasible)
	if ev.Baseline != model.OutcomeNonConverge {
		p = p.AddField("vmin_pu", round4(ev.VminPU)).
			AddField("vmax_pu", round4(ev.VmaxPU)).
			AddField("p_total_mw", round3(ev.KPI.PTotalMW)).
			AddField("max_loading_pct", round3(ev.KPI.MaxLoadingPct)).
			AddField("voltage_dev_pct", round3(ev.KPI.VoltageDevPct)).
			AddField("loss_rate_pct", round3(ev.KPI.LossRatePct))
	}
	return p.SetTime(ev.Time)
}

func summaryPoint(ev coremetrics.SummaryEvent) *write.Point {
	sum := ev.Summary
	p := write.NewPointWithMeasurement("hosting_summary").
		AddTag("run_id", sum.RunID).
		AddField("steps", sum.Steps).
		AddField("alpha_mean", round3(sum.AlphaMean)).
		AddField("alpha_p50", round3(sum.AlphaP50)).
		AddField("alpha_p90", round3(sum.AlphaP90)).
		AddField("alpha_min", round3(sum.AlphaMin)).
		AddField("alpha_max", round3(sum.AlphaMax)).
		AddField("unreliable_steps", sum.UnreliableSteps).
		AddField("zero_infeasible_steps", sum.ZeroInfeasibleSteps).
		AddField("dropped_events", int64(ev.DroppedEvents)).
		AddField("duration_s", round3(ev.Duration.Seconds()))
	return p.SetTime(ev.Time)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}
