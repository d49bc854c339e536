// Package progress fans pipeline events out to subscribers and keeps an
// append-only per-job history.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/bizintel/internal/model"
)

// Bus is the in-process progress event hub. Publishing never blocks: a slow
// subscriber loses events rather than stalling the pipeline.
type Bus struct {
	mu        sync.RWMutex
	history   map[string][]model.ProgressEvent
	subs      map[int]chan model.ProgressEvent
	nextSub   int
	retention int
}

// NewBus creates a Bus. retention caps the per-job history length;
// 0 means unlimited.
func NewBus(retention int) *Bus {
	return &Bus{
		history:   map[string][]model.ProgressEvent{},
		subs:      map[int]chan model.ProgressEvent{},
		retention: retention,
	}
}

// Publish appends the event to its job's history and offers it to every
// subscriber without blocking.
func (b *Bus) Publish(ev model.ProgressEvent) {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}

	b.mu.Lock()
	events := append(b.history[ev.JobID], ev)
	if b.retention > 0 && len(events) > b.retention {
		events = events[len(events)-b.retention:]
	}
	b.history[ev.JobID] = events
	subs := make([]chan model.ProgressEvent, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			zap.L().Debug("progress subscriber full, dropping event",
				zap.String("job_id", ev.JobID),
				zap.String("phase", string(ev.Phase)))
		}
	}
}

// Subscribe registers a buffered listener. The returned cancel func closes
// the channel and removes the subscription.
func (b *Bus) Subscribe(buffer int) (<-chan model.ProgressEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan model.ProgressEvent, buffer)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// History returns a copy of the job's event log in publish order.
func (b *Bus) History(jobID string) []model.ProgressEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.history[jobID]
	out := make([]model.ProgressEvent, len(events))
	copy(out, events)
	return out
}

// Forget drops a finished job's history.
func (b *Bus) Forget(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.history, jobID)
}
