package tcp

import (
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/kvaster/nvmetcp/api"
	"github.com/kvaster/nvmetcp/pool"
)

// zeroCopyThresholdDefault matches the conservative default most
// zero-copy socket layers use: below this size, the copy into the
// kernel socket buffer is cheaper than the extra completion-tracking
// round trip MSG_ZEROCOPY requires.
const zeroCopyThresholdDefault = 8192

// Socket is a non-blocking Linux TCP socket implementing api.Socket.
// It owns the raw file descriptor directly rather than wrapping
// net.Conn, since zero-copy send/receive need raw sendmsg/recvmsg
// access the standard library does not expose.
type Socket struct {
	fd int32

	zeroCopySend      bool
	zeroCopyRecv      bool
	zeroCopyThreshold int

	sendIdx atomic.Uint32

	recvPool *pool.BufferPool
	recvNUMA int

	batch api.BatchPolicy

	mu              sync.Mutex
	closed          bool
	outstandingRefs atomic.Int64
}

// newSocket wraps an already-connected, already-nonblocking fd.
func newSocket(fd int, opts api.DialOptions, recvPool *pool.BufferPool, recvNUMA int) *Socket {
	threshold := opts.ZeroCopyThreshold
	if threshold <= 0 {
		threshold = zeroCopyThresholdDefault
	}
	s := &Socket{
		fd:                int32(fd),
		zeroCopySend:      opts.EnableZeroCopySend,
		zeroCopyRecv:      opts.EnableZeroCopyRecv,
		zeroCopyThreshold: threshold,
		recvPool:          recvPool,
		recvNUMA:          recvNUMA,
		batch: api.BatchPolicy{
			IovThreshold:   8,
			BytesThreshold: 64 * 1024,
			FlushTimeoutNs: int64(1 * 1_000_000), // 1ms
			MaxIovThresh:   64,
		},
	}
	return s
}

func (s *Socket) Fd() uintptr { return uintptr(s.fd) }

// SendAsync issues a single vectored sendmsg call. When zero-copy send
// is enabled and the total payload is at least zeroCopyThreshold bytes,
// MSG_ZEROCOPY is set and the caller must later observe the returned
// idx via PollSendCompletions before reusing any iov whose Key was
// non-nil (memory-domain-registered, hardware-readable in place).
func (s *Socket) SendAsync(iovs []api.SendIov) (uint32, error) {
	if len(iovs) == 0 {
		return 0, api.ErrInvalidArgument
	}

	total := 0
	raw := make([]unix.Iovec, len(iovs))
	for i, iov := range iovs {
		total += len(iov.Data)
		if len(iov.Data) > 0 {
			raw[i].Base = &iov.Data[0]
		}
		raw[i].SetLen(len(iov.Data))
	}

	flags := 0
	useZC := s.zeroCopySend && total >= s.zeroCopyThreshold
	if useZC {
		flags = unix.MSG_ZEROCOPY
	}

	if err := sendmsgIovec(int(s.fd), raw, flags); err != nil {
		if err == unix.EAGAIN {
			return 0, api.ErrAgain
		}
		return 0, err
	}

	return s.nextSendIdx(), nil
}

// nextSendIdx assigns the next monotonic sendmsg index, wrapping from
// math.MaxUint32 back to 1 (0 is reserved as "no index assigned").
func (s *Socket) nextSendIdx() uint32 {
	for {
		cur := s.sendIdx.Load()
		next := cur + 1
		if cur == math.MaxUint32 {
			next = 1
		}
		if s.sendIdx.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// PollSendCompletions drains the socket error queue for zero-copy
// completion notifications (SO_EE_ORIGIN_ZEROCOPY), returning the
// [lo, hi] sendmsg index range acknowledged since the last call.
func (s *Socket) PollSendCompletions() (uint32, uint32, bool) {
	if !s.zeroCopySend {
		return 0, 0, false
	}
	lo, hi, err := recvZerocopyCompletion(int(s.fd))
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// RecvChunks reads up to maxLen bytes into a pool-backed buffer and
// returns it as a single-chunk zero-copy chain; the chunk's PacketRef
// releases the buffer back to the pool once every consumer drops its
// reference. The data is always copied out of the kernel by recvfrom:
// DialOptions.EnableZeroCopyRecv is stored on the Socket but does not
// change this path. The chunk still follows the PacketRef/ref-count
// contract callers depend on.
func (s *Socket) RecvChunks(maxLen int) ([]api.Chunk, error) {
	buf := s.recvPool.Get(maxLen, s.recvNUMA)
	n, _, err := unix.Recvfrom(int(s.fd), buf.Data, 0)
	if err != nil {
		buf.Release()
		if err == unix.EAGAIN {
			return nil, api.ErrAgain
		}
		return nil, err
	}
	if n == 0 {
		buf.Release()
		return nil, api.ErrClosed
	}
	s.outstandingRefs.Add(1)
	ref := api.NewPacketRef(func() {
		buf.Release()
		s.outstandingRefs.Add(-1)
	})
	return []api.Chunk{{Data: buf.Data[:n], Source: ref}}, nil
}

// RecvBytes performs a traditional copying receive via readv.
func (s *Socket) RecvBytes(iovs [][]byte) (int, error) {
	n, err := unix.Readv(int(s.fd), iovs)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, api.ErrAgain
		}
		return 0, err
	}
	if n == 0 {
		return 0, api.ErrClosed
	}
	return n, nil
}

// FreeChunks releases every chunk's PacketRef.
func (s *Socket) FreeChunks(chunks []api.Chunk) {
	for _, c := range chunks {
		c.Source.Release()
	}
}

func (s *Socket) SetRecvBuf(bytes int) error {
	return unix.SetsockoptInt(int(s.fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
}

func (s *Socket) SetNonblocking(nb bool) error {
	return unix.SetNonblock(int(s.fd), nb)
}

// Close closes the socket. If force is false and zero-copy receive
// references are still outstanding, Close returns api.ErrAgain so the
// caller can retry once those buffers are released.
func (s *Socket) Close(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if !force && s.outstandingRefs.Load() > 0 {
		return api.ErrAgain
	}
	s.closed = true
	return unix.Close(int(s.fd))
}

var _ api.Socket = (*Socket)(nil)

// sendmsgIovec issues a vectored sendmsg(2) call directly, since the
// standard library and x/sys/unix's SendmsgN only expose a single
// contiguous buffer.
func sendmsgIovec(fd int, iov []unix.Iovec, flags int) error {
	var msg unix.Msghdr
	if len(iov) > 0 {
		msg.Iov = &iov[0]
	}
	msg.SetIovlen(len(iov))

	_, _, errno := unix.Syscall(unix.SYS_SENDMSG, uintptr(fd), uintptr(unsafe.Pointer(&msg)), uintptr(flags))
	if errno != 0 {
		return errno
	}
	return nil
}

// sockExtendedErr mirrors Linux's struct sock_extended_err
// (linux/errqueue.h), the MSG_ERRQUEUE control-message payload carrying
// a zero-copy completion range in ee_info (lo) / ee_data (hi).
type sockExtendedErr struct {
	Errno  uint32
	Origin uint8
	Type   uint8
	Code   uint8
	Pad    uint8
	Info   uint32
	Data   uint32
}

const soEEOriginZeroCopy = 5

// recvZerocopyCompletion drains one completion record from the socket
// error queue and returns its [lo, hi] sendmsg index range.
func recvZerocopyCompletion(fd int) (lo, hi uint32, err error) {
	var cbuf [unix.CmsgSpace(16)]byte // sizeof(cmsghdr) + sizeof(sock_extended_err) (16 bytes), rounded
	var msg unix.Msghdr
	msg.Control = &cbuf[0]
	msg.SetControllen(len(cbuf))

	_, _, errno := unix.Syscall(unix.SYS_RECVMSG, uintptr(fd), uintptr(unsafe.Pointer(&msg)), uintptr(unix.MSG_ERRQUEUE))
	if errno != 0 {
		return 0, 0, errno
	}

	cmsgs, err := unix.ParseSocketControlMessage(cbuf[:msg.Controllen])
	if err != nil || len(cmsgs) == 0 {
		return 0, 0, unix.EAGAIN
	}
	data := cmsgs[0].Data
	if len(data) < int(unsafe.Sizeof(sockExtendedErr{})) {
		return 0, 0, unix.EAGAIN
	}
	serr := (*sockExtendedErr)(unsafe.Pointer(&data[0]))
	if serr.Origin != soEEOriginZeroCopy {
		return 0, 0, unix.EAGAIN
	}
	return serr.Info, serr.Data, nil
}
