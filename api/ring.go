package api

// Ring is a fixed-capacity, lock-free FIFO contract used for cross-thread
// handoff (CID free lists, send-completion index queues, poll-group
// dispatch rings).
type Ring[T any] interface {
	// Enqueue adds an item; returns false if the ring is full.
	Enqueue(item T) bool
	// Dequeue removes and returns the oldest item; ok is false if empty.
	Dequeue() (item T, ok bool)
	// Len reports the number of items currently queued.
	Len() int
	// Cap reports the fixed ring capacity.
	Cap() int
}

// Batch is a zero-alloc, sliceable batch of values, used to hand a run of
// buffers or PDUs to a vectored I/O call without per-item allocation.
type Batch[T any] interface {
	Len() int
	Get(i int) T
	Slice(start, end int) Batch[T]
	Split(at int) (first, second Batch[T])
	Underlying() []T
	Reset()
}
