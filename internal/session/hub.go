package session

import (
	"sync"

	"github.com/Conceptual-Machines/variation-explorer/internal/explore"
)

const subscriberBuffer = 16

// Hub fans controller snapshots out to subscribers. Snapshots are delivered in
// version order and anything older than the last published version is dropped.
// A subscriber that falls behind loses its oldest queued snapshot, so the
// latest state always gets through.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan explore.Snapshot]struct{}
	last        uint64
	closed      bool
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan explore.Snapshot]struct{})}
}

// Publish delivers snap to every subscriber without blocking.
func (h *Hub) Publish(snap explore.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || (h.last != 0 && snap.Version <= h.last) {
		return
	}
	h.last = snap.Version

	for ch := range h.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Subscribe returns a snapshot channel and a func that unsubscribes. The
// channel is closed on unsubscribe or when the hub closes.
func (h *Hub) Subscribe() (<-chan explore.Snapshot, func()) {
	ch := make(chan explore.Snapshot, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}
