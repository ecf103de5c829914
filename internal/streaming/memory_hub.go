package streaming

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultChannelBuffer = 64

// watcher is one subscription: a delivery channel plus the event types it
// wants (empty set means all).
type watcher struct {
	id    uint64
	types map[string]struct{}
	ch    chan StreamEvent
}

func (w *watcher) wants(eventType string) bool {
	if len(w.types) == 0 {
		return true
	}
	_, ok := w.types[eventType]
	return ok
}

// MemoryHub is an in-memory EventHub. Watchers are bucketed by run so a
// publish only touches the subscriptions that can match: the bucket for the
// event's run plus the wildcard bucket (key "") of watchers following every
// run.
type MemoryHub struct {
	mu     sync.RWMutex
	byRun  map[string][]*watcher
	nextID atomic.Uint64
}

// NewMemoryHub creates a new MemoryHub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{byRun: make(map[string][]*watcher)}
}

// Publish sends an event to all matching watchers.
// Non-blocking: if a watcher's channel is full the event is dropped.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	deliver(h.byRun[""], event)
	if event.RunID != "" {
		deliver(h.byRun[event.RunID], event)
	}
	return nil
}

func deliver(ws []*watcher, event StreamEvent) {
	for _, w := range ws {
		if !w.wants(event.EventType) {
			continue
		}
		select {
		case w.ch <- event:
		default:
			// backpressure: drop event for slow watcher
		}
	}
}

// Subscribe registers a watcher for the given filter. A filter with no RunID
// follows every run. Returns a receive-only channel, a cancel function, and
// any error.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	w := &watcher{
		id: h.nextID.Add(1),
		ch: make(chan StreamEvent, defaultChannelBuffer),
	}
	if len(filter.EventTypes) > 0 {
		w.types = make(map[string]struct{}, len(filter.EventTypes))
		for _, t := range filter.EventTypes {
			w.types[t] = struct{}{}
		}
	}

	key := filter.RunID
	h.mu.Lock()
	h.byRun[key] = append(h.byRun[key], w)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		bucket := h.byRun[key]
		for i, cand := range bucket {
			if cand.id == w.id {
				h.byRun[key] = append(bucket[:i:i], bucket[i+1:]...)
				break
			}
		}
		if len(h.byRun[key]) == 0 {
			delete(h.byRun, key)
		}
	}

	return w.ch, cancel, nil
}
