package logging

import (
	"sync"
	"time"
)

// LogEntry is a single log line stored in the ring buffer.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries for the history API and
// the SSE log stream. Once full, each write overwrites the oldest entry.
type RingBuffer struct {
	mu    sync.RWMutex
	slots []LogEntry
	next  int
	full  bool
}

// NewRingBuffer creates a ring buffer holding up to capacity entries.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{slots: make([]LogEntry, capacity)}
}

// Write stores an entry, evicting the oldest one when the buffer is full.
func (b *RingBuffer) Write(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slots[b.next] = entry
	b.next++
	if b.next == len(b.slots) {
		b.next = 0
		b.full = true
	}
}

// ReadAll returns the stored entries oldest first, or nil when empty.
func (b *RingBuffer) ReadAll() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.full {
		if b.next == 0 {
			return nil
		}
		out := make([]LogEntry, b.next)
		copy(out, b.slots[:b.next])
		return out
	}

	// Full buffer: next points at the oldest entry.
	out := make([]LogEntry, 0, len(b.slots))
	out = append(out, b.slots[b.next:]...)
	out = append(out, b.slots[:b.next]...)
	return out
}

// Count returns how many entries the buffer currently holds.
func (b *RingBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.full {
		return len(b.slots)
	}
	return b.next
}
