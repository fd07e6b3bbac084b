//go:build linux

package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kvaster/nvmetcp/api"
)

// EpollReactor implements api.Reactor on Linux using epoll(7) in
// level-triggered mode: a qpair's socket that still has unread bytes
// keeps firing EventRead until the qpair actually drains it, which
// matches the "process_completions reads as much as available" contract.
type EpollReactor struct {
	epfd int

	mu        sync.Mutex
	callbacks map[uintptr]api.FDCallback
}

// NewEpollReactor creates a new epoll instance.
func NewEpollReactor() (*EpollReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &EpollReactor{epfd: epfd, callbacks: make(map[uintptr]api.FDCallback)}, nil
}

func toEpollMask(events api.FDEvent) uint32 {
	var mask uint32
	if events&api.EventRead != 0 {
		mask |= unix.EPOLLIN
	}
	if events&api.EventWrite != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (r *EpollReactor) Register(fd uintptr, events api.FDEvent, cb api.FDCallback) error {
	ev := unix.EpollEvent{Events: toEpollMask(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add: %w", err)
	}
	r.mu.Lock()
	r.callbacks[fd] = cb
	r.mu.Unlock()
	return nil
}

func (r *EpollReactor) Modify(fd uintptr, events api.FDEvent) error {
	ev := unix.EpollEvent{Events: toEpollMask(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl mod: %w", err)
	}
	return nil
}

func (r *EpollReactor) Unregister(fd uintptr) error {
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	r.mu.Lock()
	delete(r.callbacks, fd)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("reactor: epoll_ctl del: %w", err)
	}
	return nil
}

// MaxEventsPerPoll bounds a single Poll call's epoll_wait batch.
const MaxEventsPerPoll = 256

func (r *EpollReactor) Poll(timeoutMs int) (int, error) {
	var raw [MaxEventsPerPoll]unix.EpollEvent
	n, err := unix.EpollWait(r.epfd, raw[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		fd := uintptr(raw[i].Fd)
		var ev api.FDEvent
		if raw[i].Events&unix.EPOLLIN != 0 {
			ev |= api.EventRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			ev |= api.EventWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			ev |= api.EventError
		}
		r.mu.Lock()
		cb := r.callbacks[fd]
		r.mu.Unlock()
		if cb != nil {
			cb(fd, ev)
		}
	}
	return n, nil
}

func (r *EpollReactor) Close() error {
	return unix.Close(r.epfd)
}

var _ api.Reactor = (*EpollReactor)(nil)
