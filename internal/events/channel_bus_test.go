package events_test

import (
	"context"
	"os"
	"testing"
	"time"

	intevents "github.com/margo-labs/margo/internal/events"
	"github.com/margo-labs/margo/internal/logger"
	"github.com/margo-labs/margo/internal/metrics"
	"github.com/margo-labs/margo/pkg/margo/v1/events"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func testBus() *intevents.ChannelEventBus {
	log := logger.NewLogger("error", "text", os.Stderr)
	return intevents.NewChannelEventBus(8, log)
}

func TestChannelEventBus_DeliversEvents(t *testing.T) {
	bus := testBus()
	defer bus.Close()

	bus.Emit(events.Event{Type: events.SolveCompleted, ModelName: "m"})

	select {
	case event := <-bus.GetChannel():
		assert.Equal(t, events.SolveCompleted, event.Type)
		assert.Equal(t, "m", event.ModelName)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestChannelEventBus_DropsWhenFull(t *testing.T) {
	log := logger.NewLogger("error", "text", os.Stderr)
	bus := intevents.NewChannelEventBus(1, log)
	defer bus.Close()

	// The second emit must not block even though nothing is draining.
	done := make(chan struct{})
	go func() {
		bus.Emit(events.Event{Type: events.SolveStart})
		bus.Emit(events.Event{Type: events.SolveCompleted})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}
}

func TestNoOpEventBus_DiscardsEvents(t *testing.T) {
	bus := intevents.NewNoOpEventBus()
	assert.NotPanics(t, func() {
		bus.Emit(events.Event{Type: events.ModelStart})
	})
}

func TestMetricsEventListener_TranslatesEvents(t *testing.T) {
	log := logger.NewLogger("error", "text", os.Stderr)
	bus := intevents.NewChannelEventBus(16, log)

	provider := metrics.NewPrometheusRegistryProvider()
	instruments := metrics.NewEngineInstruments(provider.Registry())
	listener := intevents.NewMetricsEventListener(bus, instruments, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		listener.Start(ctx)
		close(done)
	}()

	bus.Emit(events.Event{Type: events.SolveCompleted})
	bus.Emit(events.Event{Type: events.CacheRebuilt})
	bus.Emit(events.Event{Type: events.QueryAnswered, Payload: map[string]interface{}{"kind": "distribution"}})
	bus.Emit(events.Event{Type: events.QueryRejected, Payload: map[string]interface{}{"reason": "zero_mass"}})

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop after bus close")
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(instruments.SolvesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(instruments.CacheRebuildsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(instruments.QueriesTotal.WithLabelValues("distribution")))
	assert.Equal(t, 1.0, testutil.ToFloat64(instruments.QueryRejectionsTotal.WithLabelValues("zero_mass")))
}
