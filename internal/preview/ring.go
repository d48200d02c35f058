package preview

import (
	"sync"
	"time"
)

// RingCapacity bounds the retained console history per studio instance.
const RingCapacity = 200

// LogEntry is one retained console line.
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// Ring keeps the most recent console entries, oldest evicted first.
type Ring struct {
	mu      sync.Mutex
	entries []LogEntry
	max     int
}

func NewRing(max int) *Ring {
	if max <= 0 {
		max = RingCapacity
	}
	return &Ring{max: max}
}

func (r *Ring) Append(level, message string) LogEntry {
	entry := LogEntry{
		Level:   level,
		Message: message,
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
	r.mu.Unlock()
	return entry
}

// Snapshot returns a copy of the retained entries in arrival order.
func (r *Ring) Snapshot() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Ring) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}
