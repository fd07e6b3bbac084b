package api

import "context"

// MemoryKey is an opaque, transport-specific translation key attached to
// an iovec so that hardware can read the buffer without a copy. A nil key
// means "copy this segment normally".
type MemoryKey any

// SendIov is one segment of a vectored send. Key is non-nil only when the
// segment is backed by a registered memory region (see memdomain.Translate).
type SendIov struct {
	Data []byte
	Key  MemoryKey
}

// Chunk is one reference-counted slice of a zero-copy receive. Multiple
// Chunks may share the same underlying Source; the chain is released with
// FreeChunks once consumed.
type Chunk struct {
	Data   []byte
	Source *PacketRef
}

// PacketRef is a reference-counted network buffer. Release decrements the
// count and returns the packet to its origin exactly once the count
// reaches zero.
type PacketRef struct {
	refs    int32
	release func()
}

// NewPacketRef wraps a release callback invoked once the last reference
// is dropped.
func NewPacketRef(release func()) *PacketRef {
	return &PacketRef{refs: 1, release: release}
}

// Retain increments the reference count; callers must pair every Retain
// with a Release.
func (p *PacketRef) Retain() {
	if p == nil {
		return
	}
	p.addRef(1)
}

// Release decrements the reference count, invoking the release callback
// exactly once when it reaches zero.
func (p *PacketRef) Release() {
	if p == nil {
		return
	}
	if p.addRef(-1) == 0 && p.release != nil {
		p.release()
	}
}

// Socket is the zero-copy TCP (or TLS-wrapped) socket abstraction the
// qpair engine drives. Implementations are non-blocking; all methods
// return api.ErrAgain rather than blocking when no progress is possible.
type Socket interface {
	// Fd exposes the raw descriptor for reactor registration.
	Fd() uintptr

	// SendAsync enqueues a vectored send. Ordering across calls on the
	// same socket is strict FIFO. Returns a monotonically increasing
	// sendmsg index the caller can match against PollSendCompletions.
	SendAsync(iovs []SendIov) (idx uint32, err error)

	// PollSendCompletions returns the inclusive [lo, hi] range of
	// sendmsg indices acknowledged by the kernel/NIC since the last
	// call, or ok=false if nothing completed.
	PollSendCompletions() (lo, hi uint32, ok bool)

	// RecvChunks receives up to len bytes as a chain of zero-copy
	// Chunks. Partial receives are valid; calling again continues where
	// the previous call left off.
	RecvChunks(maxLen int) ([]Chunk, error)

	// RecvBytes performs a traditional copying receive into iovs.
	RecvBytes(iovs [][]byte) (int, error)

	// FreeChunks releases references on a chain returned by RecvChunks.
	FreeChunks(chunks []Chunk)

	SetRecvBuf(bytes int) error
	SetNonblocking(nb bool) error

	// Close closes the socket. If force is false and zero-copy receive
	// references are still outstanding, Close returns api.ErrAgain and
	// the caller must retry once those references are released.
	Close(force bool) error
}

// Dialer opens a Socket to a remote address, optionally under TLS 1.3
// with a pre-shared key.
type Dialer interface {
	Dial(ctx context.Context, network, address string, opts DialOptions) (Socket, error)
}

// DialOptions configures a Dial call.
type DialOptions struct {
	EnableZeroCopySend bool
	EnableZeroCopyRecv bool
	ZeroCopyThreshold  int
	TCPNoDelay         bool
	TCPUserTimeout     int // milliseconds, 0 disables
	RecvBufSize        int
	SendBufSize        int

	// TLSPSK, when non-nil, upgrades the connection to TLS 1.3 using the
	// fixed PSK identity "psk.spdk.io".
	TLSPSK []byte
}
