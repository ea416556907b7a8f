package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/hostcap/core/factory"
	coremetrics "github.com/kilianp07/hostcap/core/metrics"
	"github.com/kilianp07/hostcap/core/model"
)

func TestRecordStepPayloadAndQoS(t *testing.T) {
	mc := useMockClient(t, &mockClient{})
	pub, err := NewStepPublisher(Config{Broker: "tcp://localhost:1883", QoS: map[string]byte{"step": 1, "summary": 2}})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if !strings.HasPrefix(mc.opts.ClientID, "hostcap-") {
		t.Fatalf("client id not generated: %q", mc.opts.ClientID)
	}

	ev := coremetrics.StepEvent{
		RunID: "r1", Index: 4, Total: 96,
		Time:     time.Date(2023, 6, 1, 1, 0, 0, 0, time.UTC),
		Baseline: model.OutcomeOK, Alpha: 1.75, Bottleneck: model.OutcomeVoltage,
		Reliable: true, Trials: 13, Elapsed: 42 * time.Millisecond,
	}
	if err := pub.RecordStep(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(mc.published) != 1 {
		t.Fatalf("published %d messages", len(mc.published))
	}
	msg := mc.published[0]
	if msg.topic != "hostcap/r1/step" || msg.qos != 1 || msg.retained {
		t.Fatalf("unexpected message %+v", msg)
	}
	var got map[string]any
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got["bottleneck"] != "voltage" || got["alpha"] != 1.75 || got["timestamp"] != "2023-06-01T01:00:00Z" || got["elapsed_ms"] != 42.0 {
		t.Fatalf("unexpected payload %v", got)
	}

	if err := pub.RecordSummary(coremetrics.SummaryEvent{Summary: model.Summary{RunID: "r1", Steps: 96}}); err != nil {
		t.Fatalf("summary: %v", err)
	}
	sum := mc.published[1]
	if sum.topic != "hostcap/r1/summary" || sum.qos != 2 || !sum.retained {
		t.Fatalf("unexpected summary message %+v", sum)
	}
}

func TestRetryLogic(t *testing.T) {
	mc := useMockClient(t, &mockClient{publishErrs: []error{errors.New("net fail"), nil}})
	pub, err := NewStepPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if err := pub.RecordStep(coremetrics.StepEvent{RunID: "r"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected retries")
	}
}

func TestRetriesExhausted(t *testing.T) {
	fail := errors.New("net fail")
	mc := useMockClient(t, &mockClient{publishErrs: []error{fail, fail, fail}})
	pub, err := NewStepPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 1})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if err := pub.RecordStep(coremetrics.StepEvent{}); !errors.Is(err, fail) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if len(mc.published) != 3 {
		t.Fatalf("published %d times, want 3", len(mc.published))
	}
}

func TestConnectFailure(t *testing.T) {
	useMockClient(t, &mockClient{connectErr: errors.New("refused")})
	if _, err := NewStepPublisher(Config{Broker: "tcp://localhost:1883"}); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestRegisteredAsMetricsSink(t *testing.T) {
	mc := useMockClient(t, &mockClient{})
	sink, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{
		Type: "mqtt",
		Conf: map[string]any{"broker": "tcp://localhost:1883", "topic_prefix": "feeder", "max_retries": "2"},
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := sink.(*StepPublisher); !ok {
		t.Fatalf("expected StepPublisher, got %T", sink)
	}
	if err := sink.RecordStep(coremetrics.StepEvent{RunID: "x"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if mc.published[0].topic != "feeder/x/step" {
		t.Fatalf("topic = %s", mc.published[0].topic)
	}
}

func TestValidateRequiresBroker(t *testing.T) {
	if _, err := NewStepPublisher(Config{}); err == nil {
		t.Fatalf("expected error without broker")
	}
}
