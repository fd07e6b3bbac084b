package pool

import "github.com/kvaster/nvmetcp/api"

// Batch is a zero-copy view over a slice of T implementing api.Batch[T].
// Slice/Split never copy; both return batches sharing the same backing
// array as the original.
type Batch[T any] struct {
	items []T
}

// NewBatch creates an empty batch with the given capacity.
func NewBatch[T any](capacity int) *Batch[T] {
	return &Batch[T]{items: make([]T, 0, capacity)}
}

// Append adds an item to the batch.
func (b *Batch[T]) Append(item T) {
	b.items = append(b.items, item)
}

func (b *Batch[T]) Len() int { return len(b.items) }

func (b *Batch[T]) Get(i int) T { return b.items[i] }

// Slice returns a zero-copy sub-batch over [start:end).
func (b *Batch[T]) Slice(start, end int) api.Batch[T] {
	return &Batch[T]{items: b.items[start:end]}
}

// Split divides the batch at idx into two zero-copy halves.
func (b *Batch[T]) Split(at int) (first, second api.Batch[T]) {
	return &Batch[T]{items: b.items[:at]}, &Batch[T]{items: b.items[at:]}
}

// Underlying returns the backing slice.
func (b *Batch[T]) Underlying() []T { return b.items }

// Reset empties the batch while retaining its backing array.
func (b *Batch[T]) Reset() { b.items = b.items[:0] }
