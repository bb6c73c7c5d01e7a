// Package ringqueue implements the fixed-capacity in-memory circular buffer
// that sits at the front of the ingestion buffer manager (component C1).
package ringqueue

import (
	"errors"
	"sync"

	"github.com/securewatch/ingest-core/internal/schema"
)

// ErrEmpty is returned by Get/Peek when the queue holds no items.
var ErrEmpty = errors.New("ringqueue: empty")

// Queue is a fixed-capacity circular buffer of schema.BufferedItem. All
// operations are O(1). Add on a full queue evicts and returns the oldest
// item so the caller can spill it to the disk overflow buffer (C2).
type Queue struct {
	mu       sync.Mutex
	items    []schema.BufferedItem
	head     int // index of oldest item
	size     int // number of items currently stored
	capacity int
	evicted  uint64
}

// New creates a Queue with the given fixed capacity. Capacity must be >= 1.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		items:    make([]schema.BufferedItem, capacity),
		capacity: capacity,
	}
}

// Add inserts item at the tail. If the queue is full, the oldest item is
// evicted and returned alongside didEvict=true so the caller can durably spill it
// elsewhere before it is lost.
func (q *Queue) Add(item schema.BufferedItem) (evicted schema.BufferedItem, didEvict bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == q.capacity {
		evicted = q.items[q.head]
		didEvict = true
		q.items[q.head] = item
		q.head = (q.head + 1) % q.capacity
		q.evicted++
		return evicted, didEvict
	}

	tail := (q.head + q.size) % q.capacity
	q.items[tail] = item
	q.size++
	return schema.BufferedItem{}, false
}

// AddFront re-inserts item at the head, for requeue-on-dispatch-failure. It
// evicts from the tail (the newest item) if the queue is full, matching
// Add's always-succeeds contract.
func (q *Queue) AddFront(item schema.BufferedItem) (evicted schema.BufferedItem, didEvict bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == q.capacity {
		tail := (q.head + q.size - 1) % q.capacity
		evicted = q.items[tail]
		didEvict = true
		q.size--
		q.evicted++
	}

	q.head = (q.head - 1 + q.capacity) % q.capacity
	q.items[q.head] = item
	q.size++
	return evicted, didEvict
}

// Get removes and returns the oldest item.
func (q *Queue) Get() (schema.BufferedItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return schema.BufferedItem{}, ErrEmpty
	}
	item := q.items[q.head]
	q.items[q.head] = schema.BufferedItem{}
	q.head = (q.head + 1) % q.capacity
	q.size--
	return item, nil
}

// GetBatch removes and returns up to n of the oldest items, in order.
func (q *Queue) GetBatch(n int) []schema.BufferedItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > q.size {
		n = q.size
	}
	out := make([]schema.BufferedItem, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, q.items[q.head])
		q.items[q.head] = schema.BufferedItem{}
		q.head = (q.head + 1) % q.capacity
	}
	q.size -= n
	return out
}

// Peek returns the oldest item without removing it.
func (q *Queue) Peek() (schema.BufferedItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return schema.BufferedItem{}, ErrEmpty
	}
	return q.items[q.head], nil
}

// Size returns the current number of stored items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the fixed capacity.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Usage returns the fraction of capacity currently occupied, in [0,1].
func (q *Queue) Usage() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return float64(q.size) / float64(q.capacity)
}

// IsFull reports whether the queue is at capacity.
func (q *Queue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size == q.capacity
}

// IsEmpty reports whether the queue holds no items.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size == 0
}

// Evicted returns the total number of items evicted by Add/AddFront over
// the queue's lifetime, for backpressure/metrics reporting.
func (q *Queue) Evicted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}
