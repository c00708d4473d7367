// Package events fans agent lifecycle notifications out to SSE clients.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/testagent/internal/protocol"
)

// Event is one buffered notification. Data is the JSON-encoded
// protocol.Event.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the payload.
func (e Event) Decode() (protocol.Event, error) {
	var out protocol.Event
	err := json.Unmarshal(e.Data, &out)
	return out, err
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
	dropped   int64
}

// NewHub creates a hub retaining the last capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish stamps ev with the next id and delivers it without blocking.
func (h *Hub) Publish(ev protocol.Event) Event {
	payload, err := json.Marshal(ev)
	if err != nil {
		payload = []byte("{}")
	}

	h.mu.Lock()
	out := Event{
		ID:   h.nextID.Add(1),
		Type: ev.Type,
		At:   time.Now().UTC(),
		Data: payload,
	}
	h.pushLocked(out)
	for _, ch := range h.subs {
		// Slow subscribers miss events rather than stall the agent.
		select {
		case ch <- out:
		default:
			h.dropped++
		}
	}
	h.mu.Unlock()
	return out
}

// Subscribe registers a subscriber. The returned cancel closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// Dropped returns how many deliveries were skipped for full subscribers.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
