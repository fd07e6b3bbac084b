package tcp

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/kvaster/nvmetcp/api"
	"github.com/kvaster/nvmetcp/pool"
)

// Dialer opens non-blocking TCP sockets via raw syscalls rather than
// net.Dial, since net.Conn hides the file descriptor zero-copy
// send/receive and SO_ZEROCOPY/TCP_USER_TIMEOUT setsockopt calls need.
type Dialer struct {
	RecvPool *pool.BufferPool
	RecvNUMA int
}

// NewDialer creates a Dialer backed by the given receive buffer pool.
func NewDialer(recvPool *pool.BufferPool, recvNUMA int) *Dialer {
	return &Dialer{RecvPool: recvPool, RecvNUMA: recvNUMA}
}

// Dial resolves address, connects a non-blocking TCP socket, applies
// DialOptions, and optionally upgrades to TLS 1.3 with a pre-shared key.
func (d *Dialer) Dial(ctx context.Context, network, address string, opts api.DialOptions) (api.Socket, error) {
	sa, family, err := resolveSockaddr(network, address)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("tcp: socket: %w", err)
	}

	if err := dialWithContext(ctx, fd, sa); err != nil {
		unix.Close(fd)
		return nil, err
	}

	if err := applyDialOptions(fd, opts); err != nil {
		unix.Close(fd)
		return nil, err
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp: set nonblocking: %w", err)
	}

	sock := newSocket(fd, opts, d.RecvPool, d.RecvNUMA)

	if len(opts.TLSPSK) > 0 {
		return wrapTLSPSK(sock, opts.TLSPSK)
	}
	return sock, nil
}

func applyDialOptions(fd int, opts api.DialOptions) error {
	if opts.TCPNoDelay {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return fmt.Errorf("tcp: TCP_NODELAY: %w", err)
		}
	}
	if opts.TCPUserTimeout > 0 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, opts.TCPUserTimeout); err != nil {
			return fmt.Errorf("tcp: TCP_USER_TIMEOUT: %w", err)
		}
	}
	if opts.RecvBufSize > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, opts.RecvBufSize); err != nil {
			return fmt.Errorf("tcp: SO_RCVBUF: %w", err)
		}
	}
	if opts.SendBufSize > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SendBufSize); err != nil {
			return fmt.Errorf("tcp: SO_SNDBUF: %w", err)
		}
	}
	if opts.EnableZeroCopySend {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ZEROCOPY, 1); err != nil {
			return fmt.Errorf("tcp: SO_ZEROCOPY: %w", err)
		}
	}
	return nil
}

var _ api.Dialer = (*Dialer)(nil)
