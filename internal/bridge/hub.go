package bridge

import (
	"log/slog"
	"sync"

	"tools.zach/dev/richcord/internal/session"
)

// Hub fans session events out to any number of subscribers. It implements
// [session.Notifier]. Delivery never blocks the session: an event for a
// subscriber whose buffer is full is dropped.
type Hub struct {
	log *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]chan session.Event
	nextID uint64
}

// NewHub creates a hub with no subscribers.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:  log.With("component", "bridge"),
		subs: make(map[uint64]chan session.Event),
	}
}

// Notify delivers ev to every subscriber.
func (h *Hub) Notify(ev session.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Warn("dropping event for slow subscriber", "subscriber", id, "kind", ev.Kind)
		}
	}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan session.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan session.Event, buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
