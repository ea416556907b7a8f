package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/hostcap/core/factory"
	coremetrics "github.com/kilianp07/hostcap/core/metrics"
	"github.com/kilianp07/hostcap/infra/logger"
)

func init() {
	_ = coremetrics.RegisterMetricsSink("mqtt", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewStepPublisher(c)
	})
}

// StepPublisher publishes step events and the run summary as JSON messages.
// Steps go to <prefix>/<run_id>/step, the summary to <prefix>/<run_id>/summary
// as a retained message.
type StepPublisher struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

type stepMessage struct {
	RunID          string  `json:"run_id"`
	Index          int     `json:"index"`
	Total          int     `json:"total"`
	Timestamp      string  `json:"timestamp"`
	Baseline       string  `json:"baseline"`
	Alpha          float64 `json:"alpha"`
	Bottleneck     string  `json:"bottleneck"`
	Reliable       bool    `json:"reliable"`
	ZeroInfeasible bool    `json:"zero_infeasible"`
	Trials         int     `json:"trials"`
	PTotalMW       float64 `json:"p_total_mw"`
	VminPU         float64 `json:"vmin_pu"`
	VmaxPU         float64 `json:"vmax_pu"`
	ElapsedMS      int64   `json:"elapsed_ms"`
}

// NewStepPublisher connects to the broker.
func NewStepPublisher(cfg Config) (*StepPublisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_publisher")
	opts.OnConnect = func(_ paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return &StepPublisher{
		cli:        c,
		prefix:     cfg.TopicPrefix,
		qos:        cfg.QoS,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}, nil
}

// RecordStep publishes one message per simulated step.
func (p *StepPublisher) RecordStep(ev coremetrics.StepEvent) error {
	payload, err := json.Marshal(stepMessage{
		RunID:          ev.RunID,
		Index:          ev.Index,
		Total:          ev.Total,
		Timestamp:      ev.Time.UTC().Format(time.RFC3339),
		Baseline:       ev.Baseline.String(),
		Alpha:          ev.Alpha,
		Bottleneck:     ev.Bottleneck.String(),
		Reliable:       ev.Reliable,
		ZeroInfeasible: ev.ZeroInfeasible,
		Trials:         ev.Trials,
		PTotalMW:       ev.KPI.PTotalMW,
		VminPU:         ev.VminPU,
		VmaxPU:         ev.VmaxPU,
		ElapsedMS:      ev.Elapsed.Milliseconds(),
	})
	if err != nil {
		return err
	}
	return p.publish(p.topic(ev.RunID, "step"), p.qosFor("step"), false, payload)
}

// RecordSummary publishes the run summary as a retained message.
func (p *StepPublisher) RecordSummary(ev coremetrics.SummaryEvent) error {
	payload, err := json.Marshal(struct {
		Summary       any     `json:"summary"`
		DroppedEvents uint64  `json:"dropped_events"`
		DurationS     float64 `json:"duration_s"`
	}{ev.Summary, ev.DroppedEvents, ev.Duration.Seconds()})
	if err != nil {
		return err
	}
	return p.publish(p.topic(ev.Summary.RunID, "summary"), p.qosFor("summary"), true, payload)
}

// Close disconnects from the broker.
func (p *StepPublisher) Close() error {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	return nil
}

func (p *StepPublisher) topic(runID, kind string) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, runID, kind)
}

func (p *StepPublisher) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

func (p *StepPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.logger.Warnf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return publishErr
}
