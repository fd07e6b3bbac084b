package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// resolveSockaddr turns a "host:port" address into a raw unix.Sockaddr
// and the matching socket family, reusing net's resolver rather than
// hand-rolling DNS/IP parsing.
func resolveSockaddr(network, address string) (unix.Sockaddr, int, error) {
	addr, err := net.ResolveTCPAddr(network, address)
	if err != nil {
		return nil, 0, fmt.Errorf("tcp: resolve %q: %w", address, err)
	}

	if ip4 := addr.IP.To4(); ip4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = addr.Port
		copy(sa.Addr[:], ip4)
		return &sa, unix.AF_INET, nil
	}

	ip6 := addr.IP.To16()
	if ip6 == nil {
		return nil, 0, fmt.Errorf("tcp: unresolvable address %q", address)
	}
	var sa unix.SockaddrInet6
	sa.Port = addr.Port
	copy(sa.Addr[:], ip6)
	return &sa, unix.AF_INET6, nil
}

// dialWithContext connects the non-blocking fd to sa, waiting for
// writability via epoll rather than blocking in connect(2). Only ctx's
// deadline bounds the wait: without a deadline it waits until the
// connect completes or fails, and cancelling ctx does not end it.
func dialWithContext(ctx context.Context, fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS {
		return fmt.Errorf("tcp: connect: %w", err)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("tcp: epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	ev := unix.EpollEvent{Events: unix.EPOLLOUT, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("tcp: epoll_ctl: %w", err)
	}

	deadline := -1
	if dl, ok := ctx.Deadline(); ok {
		if ms := int(time.Until(dl).Milliseconds()); ms >= 0 {
			deadline = ms
		} else {
			deadline = 0
		}
	}

	events := make([]unix.EpollEvent, 1)
	for {
		n, werr := unix.EpollWait(epfd, events, deadline)
		if werr != nil {
			if werr == unix.EINTR {
				continue
			}
			return fmt.Errorf("tcp: epoll_wait: %w", werr)
		}
		if n == 0 {
			return context.DeadlineExceeded
		}
		break
	}

	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("tcp: getsockopt(SO_ERROR): %w", err)
	}
	if soErr != 0 {
		return fmt.Errorf("tcp: connect: %w", unix.Errno(soErr))
	}
	return nil
}
