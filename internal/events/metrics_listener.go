package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gxo-labs/rxstore/pkg/rxstore/v1/events"
	rxlog "github.com/gxo-labs/rxstore/pkg/rxstore/v1/log"
)

// MetricsEventListener drains a ChannelEventBus and counts the events it sees
// by type.
type MetricsEventListener struct {
	bus     *ChannelEventBus
	log     rxlog.Logger
	counter *prometheus.CounterVec
}

// NewMetricsEventListener creates a listener. counter must carry a single
// "type" label, as built by metrics.NewEventCounter.
func NewMetricsEventListener(bus *ChannelEventBus, counter *prometheus.CounterVec, log rxlog.Logger) *MetricsEventListener {
	if bus == nil || counter == nil || log == nil {
		panic("MetricsEventListener requires a non-nil ChannelEventBus, Prometheus CounterVec, and Logger")
	}
	return &MetricsEventListener{
		bus:     bus,
		log:     log.With("component", "MetricsEventListener"),
		counter: counter,
	}
}

// Start consumes events until the bus is closed or ctx is done. It blocks;
// run it in its own goroutine.
func (l *MetricsEventListener) Start(ctx context.Context) {
	l.log.Debugf("Starting metrics event listener...")
	for {
		select {
		case event, ok := <-l.bus.GetChannel():
			if !ok {
				l.log.Debugf("Event bus channel closed, stopping listener.")
				return
			}
			l.handleEvent(event)
		case <-ctx.Done():
			l.log.Debugf("Context cancelled, stopping metrics event listener.")
			return
		}
	}
}

func (l *MetricsEventListener) handleEvent(event events.Event) {
	l.counter.WithLabelValues(string(event.Type)).Inc()
	if event.Type == events.FetchFailed {
		l.log.Debugf("Counted failed fetch for store '%s' key '%s'", event.Store, event.Key)
	}
}
