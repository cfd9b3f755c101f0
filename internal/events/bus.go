package events

import (
	"context"
	"fmt"
	"sync"

	"ndjobi.org/internal/obs"
)

// Handler receives events synchronously on the emitting goroutine.
type Handler func(Event)

type subscription struct {
	id uint64
	h  Handler
}

// Bus is an in-process publish/subscribe registry keyed by event type.
//
// Emit delivers to exact-type subscribers, then to wildcard subscribers, each group in
// registration order. Handlers run outside the bus lock, so a handler may subscribe,
// unsubscribe or emit again. A panicking handler is logged and skipped; delivery continues.
type Bus struct {
	name string

	mu     sync.RWMutex
	subs   map[Type][]subscription
	nextID uint64
	closed bool
}

// NewBus creates a bus; name labels its metrics and log lines.
func NewBus(name string) *Bus {
	return &Bus{name: name, subs: make(map[Type][]subscription)}
}

func (b *Bus) Name() string { return b.name }

// Subscribe registers h for t (or Wildcard) and returns an idempotent unsubscribe func.
// Subscribing to a closed bus returns a no-op unsubscribe and h never runs.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(t, id) })
	}
}

func (b *Bus) remove(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[t]
	for i, s := range list {
		if s.id != id {
			continue
		}
		next := make([]subscription, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, t)
		} else {
			b.subs[t] = next
		}
		return
	}
}

// Emit delivers evt to every matching subscriber and returns the number of handler calls.
func (b *Bus) Emit(evt Event) int {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}
	exact := b.subs[evt.Type]
	wild := b.subs[Wildcard]
	b.mu.RUnlock()

	obs.EventsEmitted.WithLabelValues(b.name, string(evt.Type)).Inc()

	// Slices are copy-on-write, so these snapshots are stable while handlers run.
	calls := 0
	for _, s := range exact {
		b.deliver(s, evt)
		calls++
	}
	if evt.Type != Wildcard {
		for _, s := range wild {
			b.deliver(s, evt)
			calls++
		}
	}
	return calls
}

func (b *Bus) deliver(s subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			obs.HandlerPanics.WithLabelValues(b.name).Inc()
			obs.Error("event handler panic", map[string]any{
				"bus":      b.name,
				"event_id": evt.ID,
				"type":     string(evt.Type),
				"panic":    fmt.Sprint(r),
			})
		}
	}()
	s.h(evt)
}

// Len returns the number of handlers registered for t.
func (b *Bus) Len(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[t])
}

// Close drops every subscriber. Later emits are no-ops; outstanding unsubscribe funcs stay safe.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[Type][]subscription)
}

// Channel adapts a subscription into a buffered channel closed when ctx ends.
// Events are dropped when the consumer falls behind so emitters never block.
func (b *Bus) Channel(ctx context.Context, t Type, size int) <-chan Event {
	if size <= 0 {
		size = 16
	}
	ch := make(chan Event, size)

	var mu sync.Mutex
	done := false
	unsubscribe := b.Subscribe(t, func(evt Event) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		select {
		case ch <- evt:
		default:
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		done = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}
