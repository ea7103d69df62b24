package telemetry

import (
	"fmt"
	"sync"
	"time"
)

// node represents an internal linked list node for the odometry buffer.
type node struct {
	record *Odometry
	next   *node
}

// Buffer implements a thread-safe buffer that keeps odometry records in
// timestamp order until they are flushed to storage. Records with equal
// timestamps keep their insertion order.
type Buffer struct {
	capacity   int // Maximum number of records to store
	flushCount int // Number of records to remove when buffer reaches capacity

	mu   sync.Mutex
	head *node
	tail *node
	size int
}

// NewBuffer creates a new odometry buffer. The buffer will store up to
// capacity records and remove flushCount records when full.
//
// Returns an error if parameters are invalid.
func NewBuffer(capacity, flushCount int) (*Buffer, error) {
	if capacity <= 0 || flushCount <= 0 || flushCount > capacity {
		return nil, fmt.Errorf("invalid buffer parameters: bufferCap=%d, toFlush=%d", capacity, flushCount)
	}
	return &Buffer{
		capacity:   capacity,
		flushCount: flushCount,
	}, nil
}

// Insert adds a record to the buffer in timestamp order. Records arrive
// almost always in order, so appending to the tail is the fast path.
func (b *Buffer) Insert(record *Odometry) error {
	if record == nil {
		return fmt.Errorf("cannot insert nil record")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := &node{record: record}
	b.size++

	if b.head == nil {
		b.head, b.tail = n, n
		return nil
	}

	if !record.Timestamp.Before(b.tail.record.Timestamp) {
		b.tail.next = n
		b.tail = n
		return nil
	}

	// Special case: if record belongs before head
	if record.Timestamp.Before(b.head.record.Timestamp) {
		n.next = b.head
		b.head = n
		return nil
	}

	// Find insertion point
	current := b.head
	for current.next != nil && !record.Timestamp.Before(current.next.record.Timestamp) {
		current = current.next
	}

	n.next = current.next
	current.next = n
	return nil
}

// IsFull returns true if the buffer has reached its capacity.
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.size >= b.capacity
}

// Flush removes and returns the oldest records from the buffer.
// Returns nil if the buffer is empty.
func (b *Buffer) Flush() []*Odometry {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.flushCount
	if b.size > b.capacity {
		count += b.size - b.capacity
	}
	return b.take(min(count, b.size))
}

// DrainAll removes and returns all records from the buffer.
// Returns nil if the buffer is empty.
func (b *Buffer) DrainAll() []*Odometry {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.take(b.size)
}

// Size returns the current number of records in the buffer.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Span returns the time covered by the buffered records
func (b *Buffer) Span() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.head == nil {
		return 0
	}
	return b.tail.record.Timestamp.Sub(b.head.record.Timestamp)
}

// take must be called with the lock held
func (b *Buffer) take(count int) []*Odometry {
	if b.head == nil || count <= 0 {
		return nil
	}

	results := make([]*Odometry, 0, count) // Preallocate with capacity
	current := b.head
	for i := 0; i < count && current != nil; i++ {
		results = append(results, current.record)
		current = current.next
	}

	b.head = current
	if b.head == nil {
		b.tail = nil
	}
	b.size -= len(results)
	return results
}
