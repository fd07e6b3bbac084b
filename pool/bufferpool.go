package pool

import (
	"sync"
	"sync/atomic"

	"github.com/kvaster/nvmetcp/api"
)

// sizeClass rounds a request up to a small set of fixed allocation
// classes so that sync.Pool free lists stay homogeneous per class.
func sizeClass(n int) int {
	switch {
	case n <= 4096:
		return 4096
	case n <= 8192:
		return 8192
	case n <= 16384:
		return 16384
	case n <= 65536:
		return 65536
	default:
		return n
	}
}

// classPool is a single (numaNode, class) free list.
type classPool struct {
	class int
	node  int
	free  sync.Pool
}

func newClassPool(node, class int) *classPool {
	cp := &classPool{class: class, node: node}
	cp.free.New = func() any {
		return make([]byte, class)
	}
	return cp
}

// BufferPool is a NUMA-segmented, size-classed implementation of
// api.BufferPool. A node value of -1 means "no NUMA preference". Every
// distinct (node, class) pair Get or Put sees gets its own bucket,
// created on first use; there is no fallback between nodes.
type BufferPool struct {
	mu      sync.RWMutex
	buckets map[[2]int]*classPool

	allocCount atomic.Int64
	freeCount  atomic.Int64
}

// NewBufferPool creates an empty buffer pool. Buckets are created
// lazily on first Get for a given (node, class) pair.
func NewBufferPool() *BufferPool {
	return &BufferPool{buckets: make(map[[2]int]*classPool)}
}

func (p *BufferPool) bucket(node, class int) *classPool {
	key := [2]int{node, class}
	p.mu.RLock()
	cp, ok := p.buckets[key]
	p.mu.RUnlock()
	if ok {
		return cp
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if cp, ok := p.buckets[key]; ok {
		return cp
	}
	cp = newClassPool(node, class)
	p.buckets[key] = cp
	return cp
}

// Get returns a buffer of at least size bytes from the bucket for
// numaPreferred, allocating a fresh one if the bucket's free list is
// empty.
func (p *BufferPool) Get(size int, numaPreferred int) api.Buffer {
	class := sizeClass(size)
	cp := p.bucket(numaPreferred, class)
	buf := cp.free.Get().([]byte)
	if cap(buf) < class {
		buf = make([]byte, class)
	}
	p.allocCount.Add(1)
	return api.Buffer{Data: buf[:size], NUMA: numaPreferred, Class: class, Pool: p}
}

// Put returns a buffer to its (node, class) bucket. Buffers whose
// Class was never set by this pool (Class == 0) are dropped rather than
// pooled, since their backing capacity is unknown.
func (p *BufferPool) Put(b api.Buffer) {
	if b.Class == 0 {
		return
	}
	cp := p.bucket(b.NUMA, b.Class)
	cp.free.Put(b.Data[:cap(b.Data)])
	p.freeCount.Add(1)
}

// Stats reports cumulative allocation/free counts across all buckets.
// Per-NUMA breakdown is omitted: callers that need it should track
// Get/Put at the call site, since the bucket map itself is the
// authoritative source and churns under concurrent access.
func (p *BufferPool) Stats() api.BufferPoolStats {
	alloc := p.allocCount.Load()
	free := p.freeCount.Load()
	return api.BufferPoolStats{
		TotalAlloc: alloc,
		TotalFree:  free,
		InUse:      alloc - free,
	}
}

var _ api.BufferPool = (*BufferPool)(nil)
