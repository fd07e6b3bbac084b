package pool

import "github.com/kvaster/nvmetcp/api"

// ChunkChain accumulates api.Chunk values received across one or more
// RecvChunks calls into a single logical payload, and retains the
// PacketRef of each chunk for as long as the chain is held. A request
// holding zero-copy receive data keeps one ChunkChain alive until it is
// explicitly freed (see spec: "zero-copy receive buffers freed iff the
// request is freed").
type ChunkChain struct {
	chunks []api.Chunk
	length int
}

// Append adds a chunk to the chain and retains its PacketRef.
func (c *ChunkChain) Append(chunk api.Chunk) {
	if chunk.Source != nil {
		chunk.Source.Retain()
	}
	c.chunks = append(c.chunks, chunk)
	c.length += len(chunk.Data)
}

// Len returns the total number of payload bytes accumulated so far.
func (c *ChunkChain) Len() int { return c.length }

// Chunks returns the accumulated chunks in receive order.
func (c *ChunkChain) Chunks() []api.Chunk { return c.chunks }

// CopyTo copies the chain's bytes into dst in order, returning the
// number of bytes copied (min(len(dst), c.Len())).
func (c *ChunkChain) CopyTo(dst []byte) int {
	n := 0
	for _, ch := range c.chunks {
		if n >= len(dst) {
			break
		}
		copied := copy(dst[n:], ch.Data)
		n += copied
	}
	return n
}

// Release drops this chain's reference on every chunk's PacketRef and
// resets the chain to empty. Safe to call on an already-released or
// never-populated chain.
func (c *ChunkChain) Release() {
	for _, ch := range c.chunks {
		if ch.Source != nil {
			ch.Source.Release()
		}
	}
	c.chunks = nil
	c.length = 0
}
