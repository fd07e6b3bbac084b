package pool

import "github.com/kvaster/nvmetcp/api"

// ChanBytePool is a bounded, fixed-size []byte pool backed by a channel,
// used for short-lived scratch buffers (PDU header staging) on the hot
// path where NUMA placement does not matter.
type ChanBytePool struct {
	bufs chan []byte
	size int
}

// NewChanBytePool pre-allocates capacity buffers of size bytes each.
func NewChanBytePool(capacity, size int) *ChanBytePool {
	p := &ChanBytePool{bufs: make(chan []byte, capacity), size: size}
	for i := 0; i < capacity; i++ {
		p.bufs <- make([]byte, size)
	}
	return p
}

// Acquire returns a buffer of at least n bytes. If the pool is empty or
// n exceeds the pool's fixed size, a fresh buffer is allocated.
func (p *ChanBytePool) Acquire(n int) []byte {
	if n > p.size {
		return make([]byte, n)
	}
	select {
	case b := <-p.bufs:
		return b[:n]
	default:
		return make([]byte, n)
	}
}

// Release returns buf to the pool if it matches the pool's fixed size;
// otherwise it is dropped for the GC to reclaim.
func (p *ChanBytePool) Release(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	select {
	case p.bufs <- buf[:p.size]:
	default:
	}
}

var _ api.BytePool = (*ChanBytePool)(nil)
