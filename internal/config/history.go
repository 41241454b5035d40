package config

import (
	"sync"
	"time"
)

// Change is one applied configuration update as recorded in History.
type Change struct {
	Timestamp   time.Time `json:"timestamp"`
	Version     int64     `json:"version"`
	Source      string    `json:"source"`
	ChangedKeys []string  `json:"changed_keys"`
}

// History keeps the most recent applied changes in a fixed-size ring.
type History struct {
	mu      sync.Mutex
	events  []Change
	maxSize int
	next    int
}

// NewHistory creates a history holding up to maxSize changes.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &History{
		events:  make([]Change, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record stores a change, overwriting the oldest entry once full.
func (h *History) Record(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) < h.maxSize {
		h.events = append(h.events, c)
		return
	}
	h.events[h.next] = c
	h.next = (h.next + 1) % h.maxSize
}

// All returns recorded changes oldest first.
func (h *History) All() []Change {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Change, len(h.events))
	if len(h.events) < h.maxSize {
		copy(out, h.events)
		return out
	}
	n := copy(out, h.events[h.next:])
	copy(out[n:], h.events[:h.next])
	return out
}

// Recent returns at most limit of the newest changes, oldest first.
func (h *History) Recent(limit int) []Change {
	all := h.All()
	if limit <= 0 || len(all) <= limit {
		return all
	}
	return all[len(all)-limit:]
}

// ForKey returns up to limit changes touching key, newest first.
func (h *History) ForKey(key string, limit int) []Change {
	all := h.All()
	var out []Change
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		ev := UpdateEvent{ChangedKeys: all[i].ChangedKeys}
		if ev.Has(key) {
			out = append(out, all[i])
		}
	}
	return out
}
