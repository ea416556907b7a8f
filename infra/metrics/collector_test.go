package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/hostcap/core/metrics"
	"github.com/kilianp07/hostcap/internal/eventbus"
)

type countingSink struct {
	mu    sync.Mutex
	steps []int
	err   error
}

func (c *countingSink) RecordStep(ev coremetrics.StepEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, ev.Index)
	return c.err
}

func TestStepCollectorDrainsOnClose(t *testing.T) {
	bus := eventbus.NewTypedBuffered[coremetrics.StepEvent](16)
	sink := &countingSink{}
	done := StartStepCollector(context.Background(), bus, sink, nil)

	for i := 0; i < 5; i++ {
		bus.Publish(coremetrics.StepEvent{Index: i})
	}
	bus.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, sink.steps)
	assert.Zero(t, bus.Dropped())
}

func TestStepCollectorStopsOnCancel(t *testing.T) {
	bus := eventbus.NewTyped[coremetrics.StepEvent]()
	ctx, cancel := context.WithCancel(context.Background())
	done := StartStepCollector(ctx, bus, &countingSink{err: errors.New("down")}, nil)
	bus.Publish(coremetrics.StepEvent{Index: 0})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestStepCollectorWithoutBus(t *testing.T) {
	done := StartStepCollector(context.Background(), nil, &countingSink{}, nil)
	_, open := <-done
	require.False(t, open)
}
