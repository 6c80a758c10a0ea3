// Package audit keeps a bounded in-memory log of every dispatch that passed
// through the runtime. The trail is session-scoped: it survives for the life
// of the process and nothing more.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcaneos/archon-runtime/internal/domain"
)

const DefaultCapacity = 100

// Entry is one dispatched request and its outcome, as seen by the dispatcher.
type Entry struct {
	ID         string              `json:"id"`
	TraceID    string              `json:"trace_id"`
	Timestamp  time.Time           `json:"timestamp"`
	Requester  string              `json:"requester"`
	Request    domain.ToolRequest  `json:"request"`
	Response   domain.ToolResponse `json:"response"`
	DurationMs int64               `json:"duration_ms"`
}

// Recorder is the write side of the trail. The dispatcher only ever appends.
type Recorder interface {
	Record(e Entry)
}

// Trail is a fixed-capacity FIFO ring. When full, the oldest entry is
// evicted. Safe for concurrent use.
type Trail struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
}

func NewTrail(capacity int) *Trail {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Trail{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Record appends an entry, evicting the oldest when the ring is full.
// An empty ID is filled in.
func (t *Trail) Record(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.capacity {
		// Shift instead of a ring index: capacity is small and the
		// snapshot path stays trivially ordered.
		copy(t.entries, t.entries[1:])
		t.entries = t.entries[:len(t.entries)-1]
	}
	t.entries = append(t.entries, e)
}

// Snapshot returns a copy of the current entries, oldest first.
func (t *Trail) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Clear drops all entries and reports how many were removed.
func (t *Trail) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.entries)
	t.entries = t.entries[:0]
	return n
}

func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Trail) Capacity() int {
	return t.capacity
}
