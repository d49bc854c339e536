package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bizintel/internal/model"
)

func event(jobID string, phase model.Phase, status model.EventStatus) model.ProgressEvent {
	return model.ProgressEvent{JobID: jobID, Phase: phase, Status: status}
}

func TestPublishAppendsHistoryInOrder(t *testing.T) {
	t.Parallel()
	bus := NewBus(0)

	bus.Publish(event("job-1", model.PhaseDiscovery, model.EventStarted))
	bus.Publish(event("job-1", model.PhaseDiscovery, model.EventCompleted))
	bus.Publish(event("job-2", model.PhaseSelection, model.EventStarted))

	h := bus.History("job-1")
	require.Len(t, h, 2)
	assert.Equal(t, model.EventStarted, h[0].Status)
	assert.Equal(t, model.EventCompleted, h[1].Status)
	assert.False(t, h[0].TS.IsZero(), "timestamp filled on publish")

	assert.Len(t, bus.History("job-2"), 1)
	assert.Empty(t, bus.History("missing"))
}

func TestSubscribeReceivesEvents(t *testing.T) {
	t.Parallel()
	bus := NewBus(0)
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	bus.Publish(event("job-1", model.PhaseExtraction, model.EventProgress))

	select {
	case ev := <-ch:
		assert.Equal(t, model.PhaseExtraction, ev.Phase)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	t.Parallel()
	bus := NewBus(0)
	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(event("job-1", model.PhaseDiscovery, model.EventProgress))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on full subscriber")
	}
	assert.Len(t, bus.History("job-1"), 100)
}

func TestRetentionCapsHistory(t *testing.T) {
	t.Parallel()
	bus := NewBus(3)
	for i := 0; i < 10; i++ {
		bus.Publish(model.ProgressEvent{JobID: "job-1", Phase: model.PhaseDiscovery,
			Status: model.EventProgress, Counters: map[string]int{"i": i}})
	}
	h := bus.History("job-1")
	require.Len(t, h, 3)
	assert.Equal(t, 9, h[2].Counters["i"])
}

func TestCancelStopsDelivery(t *testing.T) {
	t.Parallel()
	bus := NewBus(0)
	ch, cancel := bus.Subscribe(4)
	cancel()

	bus.Publish(event("job-1", model.PhaseDiscovery, model.EventStarted))

	_, open := <-ch
	assert.False(t, open, "channel closed after cancel")
}

func TestForget(t *testing.T) {
	t.Parallel()
	bus := NewBus(0)
	bus.Publish(event("job-1", model.PhaseDiscovery, model.EventStarted))
	bus.Forget("job-1")
	assert.Empty(t, bus.History("job-1"))
}
