package telemetry

import (
	"sync"
	"time"
)

// HistoryEntry is one recorded frame in serialized form.
type HistoryEntry struct {
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// History is a bounded FIFO of serialized frames. Oldest entries are evicted
// when the capacity is exceeded. Safe for concurrent use.
type History struct {
	mu       sync.Mutex
	entries  []HistoryEntry
	capacity int
}

// NewHistory creates a history log with the given capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1000
	}
	return &History{capacity: capacity}
}

// Append records a frame, evicting the oldest entry when full.
func (h *History) Append(data string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, HistoryEntry{Data: data, Timestamp: time.Now()})
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
}

// Recent returns up to limit entries, most recent last.
func (h *History) Recent(limit int) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.entries) {
		limit = len(h.entries)
	}
	out := make([]HistoryEntry, limit)
	copy(out, h.entries[len(h.entries)-limit:])
	return out
}

// Len returns the number of recorded entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Capacity returns the configured maximum size.
func (h *History) Capacity() int {
	return h.capacity
}
