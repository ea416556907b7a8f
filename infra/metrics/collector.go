package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/hostcap/core/metrics"
	"github.com/kilianp07/hostcap/core/logger"
	"github.com/kilianp07/hostcap/internal/eventbus"
)

// StartStepCollector subscribes to the bus and records every step event on
// sink. It stops when the context is canceled or the bus is closed; the
// returned channel is closed once the subscription is drained.
func StartStepCollector(ctx context.Context, bus *eventbus.TypedBus[coremetrics.StepEvent], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log = logger.OrNop(log)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		failing := false
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := sink.RecordStep(ev); err != nil {
					if !failing {
						log.Warnf("metrics sink failed at step %d: %v", ev.Index, err)
					}
					failing = true
					continue
				}
				if failing {
					log.Infof("metrics sink recovered at step %d", ev.Index)
				}
				failing = false
			}
		}
	}()
	return done
}
