package mailbox

import "sync"

// Hub fans the latest value out to any number of boxes and remembers it, so
// late subscribers start from the current value instead of silence. Sends
// never block: each box gets the value with Put, which overwrites.
type Hub[T any] struct {
	mu    sync.Mutex
	cur   T
	has   bool
	boxes map[*Box[T]]struct{}
}

// NewHub creates a hub with no value and no subscribers.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{boxes: make(map[*Box[T]]struct{})}
}

// Send replaces the current value and puts it to every attached box. Sends
// are serialized, so every box observes them in the same order.
func (h *Hub[T]) Send(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cur = v
	h.has = true
	for b := range h.boxes {
		b.Put(v)
	}
}

// Attach registers a fresh box, seeded with the current value if the hub
// holds one.
func (h *Hub[T]) Attach() *Box[T] {
	b := NewBox[T]()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.boxes[b] = struct{}{}
	if h.has {
		b.Put(h.cur)
	}
	return b
}

// Detach unregisters a box. Later sends no longer reach it.
func (h *Hub[T]) Detach(b *Box[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.boxes, b)
}

// Peek returns the current value, if any.
func (h *Hub[T]) Peek() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur, h.has
}

// Len returns the number of attached boxes.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.boxes)
}
