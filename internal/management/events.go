package management

import (
	"sync"

	"github.com/fabric-actor/kernel/internal/model"
)

// Filter decides whether a subscriber wants to see a given reservation
// update.
type Filter func(r *model.Reservation) bool

// EventBus fans a reservation snapshot out to every subscriber whose
// filter matches, implementing §4.9's "subscribe to events with a
// filter". Publish always runs on the kernel's own loop goroutine (it
// is only ever called from inside a Base.call handler), so subscribers
// must not block: each gets a small buffered channel and a dropped
// update if it's full, rather than stalling the kernel.
type EventBus struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscription
}

type subscription struct {
	filter Filter
	ch     chan model.Reservation
}

// NewEventBus builds an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]*subscription)}
}

// Subscribe registers a filter and returns the channel of matching
// reservation snapshots plus a cancel function to unregister it. A nil
// filter matches every update.
func (b *EventBus) Subscribe(filter Filter) (<-chan model.Reservation, func()) {
	if filter == nil {
		filter = func(*model.Reservation) bool { return true }
	}
	ch := make(chan model.Reservation, 32)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{filter: filter, ch: ch}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// publish delivers a reservation snapshot to every matching subscriber,
// non-blocking.
func (b *EventBus) publish(r *model.Reservation) {
	snapshot := *r
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if !sub.filter(&snapshot) {
			continue
		}
		select {
		case sub.ch <- snapshot:
		default:
		}
	}
}
