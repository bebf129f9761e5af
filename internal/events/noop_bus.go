package events

import "github.com/margo-labs/margo/pkg/margo/v1/events"

// NoOpEventBus is a default implementation of the public events.Bus
// interface that performs no actions when Emit is called. It is used as a
// fallback when no event handling mechanism is configured, so components
// emitting events never hold a nil bus.
type NoOpEventBus struct{}

// NewNoOpEventBus creates a new instance of the NoOpEventBus.
func NewNoOpEventBus() events.Bus {
	return &NoOpEventBus{}
}

// Emit implements the events.Bus interface method and discards the event.
func (n *NoOpEventBus) Emit(event events.Event) {
}

var _ events.Bus = (*NoOpEventBus)(nil)
