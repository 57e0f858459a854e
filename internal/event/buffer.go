package event

import "sync"

// DefaultCapacity is the history size of a Buffer.
const DefaultCapacity = 500

// Buffer is the bounded event history: a ring of the most recent events, unique by ID.
type Buffer struct {
	mu    sync.RWMutex
	items []CanonicalEvent
	head  int // next write position
	size  int
	ids   map[string]struct{}
}

// NewBuffer creates a Buffer holding up to capacity events; zero or less selects
// DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		items: make([]CanonicalEvent, capacity),
		ids:   make(map[string]struct{}, capacity),
	}
}

// Add stores e unless an event with the same ID is held. When full, the oldest event is
// evicted. It reports whether e was stored.
func (b *Buffer) Add(e CanonicalEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.ids[e.ID]; dup {
		return false
	}

	if b.size == len(b.items) {
		delete(b.ids, b.items[b.head].ID)
	} else {
		b.size++
	}
	b.items[b.head] = e
	b.ids[e.ID] = struct{}{}
	b.head = (b.head + 1) % len(b.items)
	return true
}

// Contains reports whether an event with the given ID is held.
func (b *Buffer) Contains(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.ids[id]
	return ok
}

// Snapshot returns the held events, most recent first.
func (b *Buffer) Snapshot() []CanonicalEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]CanonicalEvent, 0, b.size)
	for i := 1; i <= b.size; i++ {
		idx := (b.head - i + len(b.items)) % len(b.items)
		out = append(out, b.items[idx])
	}
	return out
}

// Len returns the number of held events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the maximum number of held events.
func (b *Buffer) Capacity() int {
	return len(b.items)
}

// Clear drops every event.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.items)
	b.ids = make(map[string]struct{}, len(b.items))
	b.head = 0
	b.size = 0
}
