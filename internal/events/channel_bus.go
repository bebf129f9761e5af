package events

import (
	"github.com/margo-labs/margo/pkg/margo/v1/events"
	margolog "github.com/margo-labs/margo/pkg/margo/v1/log"
)

// ChannelEventBus implements the public events.Bus interface using a
// buffered Go channel. It provides a simple, in-process, decoupled event
// distribution mechanism for listeners running in the same process as the
// engine. Emission never blocks the engine core.
type ChannelEventBus struct {
	channel chan events.Event
	log     margolog.Logger
}

// NewChannelEventBus creates a new ChannelEventBus with the specified
// buffer size. If bufferSize is non-positive, a default is used. Panics if
// the provided logger is nil.
func NewChannelEventBus(bufferSize int, log margolog.Logger) *ChannelEventBus {
	const defaultBufferSize = 100
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if log == nil {
		panic("ChannelEventBus requires a non-nil logger")
	}

	bus := &ChannelEventBus{
		channel: make(chan events.Event, bufferSize),
		log:     log.With("component", "ChannelEventBus"),
	}
	bus.log.Debugf("ChannelEventBus initialized with buffer size %d", bufferSize)
	return bus
}

// Emit sends an event onto the internal buffered channel. The send is
// non-blocking: if the buffer is full, the event is dropped and a warning
// is logged.
func (c *ChannelEventBus) Emit(event events.Event) {
	select {
	case c.channel <- event:
		c.log.Debugf("Emitted event type '%s'", event.Type)
	default:
		c.log.Warnf("Event channel buffer full, dropping event type '%s'", event.Type)
	}
}

// GetChannel returns the underlying event channel for consumers. This is
// specific to ChannelEventBus and not part of the public events.Bus
// interface; it lets in-process listeners (like the metrics listener)
// consume events directly. The returned channel is read-only.
func (c *ChannelEventBus) GetChannel() <-chan events.Event {
	return c.channel
}

// Close closes the underlying event channel, signalling consumers that no
// more events will be sent.
func (c *ChannelEventBus) Close() {
	c.log.Debugf("Closing ChannelEventBus channel.")
	close(c.channel)
}

var _ events.Bus = (*ChannelEventBus)(nil)
