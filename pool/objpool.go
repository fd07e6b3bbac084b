package pool

import "sync"

// SyncPool wraps sync.Pool as an api.ObjectPool[T], used for short-lived
// heap objects (qpair requests, accel task nodes) that would otherwise
// churn the GC on every submit/complete cycle.
type SyncPool[T any] struct {
	pool *sync.Pool
}

// NewSyncPool creates a pool that calls newFn whenever Get finds the
// free list empty.
func NewSyncPool[T any](newFn func() T) *SyncPool[T] {
	return &SyncPool[T]{pool: &sync.Pool{New: func() any { return newFn() }}}
}

func (p *SyncPool[T]) Get() T { return p.pool.Get().(T) }

func (p *SyncPool[T]) Put(v T) { p.pool.Put(v) }
