package logpipeline

import (
	"sync"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// OverflowPolicy decides what a bounded buffer does when Push is
// called while already at capacity.
type OverflowPolicy string

const (
	// DropOldest evicts the oldest buffered entry to make room for the
	// new one — favors recency, the default for a live security feed
	// where the newest signal matters most.
	DropOldest OverflowPolicy = "drop_oldest"
	// RejectNewest refuses the incoming entry and reports the drop,
	// leaving the buffer's existing contents untouched — favors not
	// silently discarding whatever is already queued for evaluation.
	RejectNewest OverflowPolicy = "reject_newest"
)

// Buffer is a fixed-capacity FIFO queue of LogEntry values with a
// configurable overflow policy. Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	policy   OverflowPolicy
	items    []ironcore.LogEntry

	droppedTotal uint64
}

// NewBuffer returns an empty Buffer. capacity must be > 0.
func NewBuffer(capacity int, policy OverflowPolicy) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{capacity: capacity, policy: policy}
}

// Push adds entry to the buffer, applying the configured overflow
// policy if the buffer is already full. Returns false only when
// RejectNewest refuses entry; under DropOldest the oldest queued entry
// is evicted to make room, entry is queued, and Push returns true.
func (b *Buffer) Push(entry ironcore.LogEntry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) < b.capacity {
		b.items = append(b.items, entry)
		return true
	}

	switch b.policy {
	case RejectNewest:
		b.droppedTotal++
		return false
	default: // DropOldest
		b.items = append(b.items[1:], entry)
		b.droppedTotal++
		return true
	}
}

// Pop removes and returns the oldest buffered entry. Returns
// (ironcore.LogEntry{}, false) if the buffer is empty.
func (b *Buffer) Pop() (ironcore.LogEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return ironcore.LogEntry{}, false
	}
	entry := b.items[0]
	b.items = b.items[1:]
	return entry, true
}

// Len returns the number of currently buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// DroppedTotal returns the lifetime count of entries dropped by the
// overflow policy.
func (b *Buffer) DroppedTotal() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.droppedTotal
}
