package pool

import "sync/atomic"

// Ring is a lock-free, fixed-capacity, power-of-two-sized ring buffer
// implementing api.Ring[T]. It is safe for one producer and one consumer
// at a time; concurrent Enqueue calls (or concurrent Dequeue calls) race.
type Ring[T any] struct {
	data []T
	mask uint64
	head uint64
	tail uint64
}

// NewRing allocates a ring with the given capacity, rounded up to the
// next power of two.
func NewRing[T any](capacity int) *Ring[T] {
	size := uint64(1)
	for size < uint64(capacity) {
		size <<= 1
	}
	if size == 0 {
		size = 1
	}
	return &Ring[T]{data: make([]T, size), mask: size - 1}
}

// Enqueue adds an item; returns false if the ring is full.
func (r *Ring[T]) Enqueue(item T) bool {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	if tail-head == uint64(len(r.data)) {
		return false
	}
	r.data[tail&r.mask] = item
	atomic.AddUint64(&r.tail, 1)
	return true
}

// Dequeue removes and returns the oldest item, or ok=false if empty.
func (r *Ring[T]) Dequeue() (item T, ok bool) {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	if head == tail {
		return item, false
	}
	item = r.data[head&r.mask]
	atomic.AddUint64(&r.head, 1)
	return item, true
}

// Len returns the number of items currently enqueued.
func (r *Ring[T]) Len() int {
	return int(atomic.LoadUint64(&r.tail) - atomic.LoadUint64(&r.head))
}

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.data) }
