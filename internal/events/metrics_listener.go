package events

import (
	"context"

	"github.com/margo-labs/margo/internal/metrics"
	"github.com/margo-labs/margo/pkg/margo/v1/events"
	margolog "github.com/margo-labs/margo/pkg/margo/v1/log"
)

// MetricsEventListener subscribes to a margo event bus and translates the
// events it receives into Prometheus metrics.
type MetricsEventListener struct {
	bus         *ChannelEventBus
	log         margolog.Logger
	instruments *metrics.EngineInstruments
}

// NewMetricsEventListener creates a new listener. It requires a
// ChannelEventBus to subscribe to and the engine's instrument set.
func NewMetricsEventListener(bus *ChannelEventBus, instruments *metrics.EngineInstruments, log margolog.Logger) *MetricsEventListener {
	if bus == nil || instruments == nil || log == nil {
		panic("MetricsEventListener requires a non-nil ChannelEventBus, EngineInstruments, and Logger")
	}
	return &MetricsEventListener{
		bus:         bus,
		log:         log.With("component", "MetricsEventListener"),
		instruments: instruments,
	}
}

// Start begins listening for events on the bus in the calling goroutine
// until the bus channel is closed or the context is cancelled. Callers
// typically run it in its own goroutine.
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

// handleEvent processes a single event, incrementing metrics as needed.
func (l *MetricsEventListener) handleEvent(event events.Event) {
	switch event.Type {
	case events.SolveCompleted:
		l.instruments.SolvesTotal.Inc()
	case events.CacheRebuilt:
		l.instruments.CacheRebuildsTotal.Inc()
	case events.QueryAnswered:
		kind, _ := event.Payload["kind"].(string)
		if kind == "" {
			kind = "unknown"
		}
		l.instruments.QueriesTotal.WithLabelValues(kind).Inc()
	case events.QueryRejected:
		reason, _ := event.Payload["reason"].(string)
		if reason == "" {
			reason = "unknown"
		}
		l.instruments.QueryRejectionsTotal.WithLabelValues(reason).Inc()
	}
}
