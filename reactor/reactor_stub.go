//go:build !linux

package reactor

import (
	"errors"

	"github.com/kvaster/nvmetcp/api"
)

// NewEpollReactor is unavailable outside Linux; this transport targets
// the epoll(7) readiness model only.
func NewEpollReactor() (*EpollReactor, error) {
	return nil, errors.New("reactor: epoll reactor requires linux")
}

// EpollReactor is an empty placeholder satisfying api.Reactor on
// platforms without epoll, so the package still compiles.
type EpollReactor struct{}

func (r *EpollReactor) Register(fd uintptr, events api.FDEvent, cb api.FDCallback) error {
	return errors.New("reactor: unsupported platform")
}
func (r *EpollReactor) Modify(fd uintptr, events api.FDEvent) error {
	return errors.New("reactor: unsupported platform")
}
func (r *EpollReactor) Unregister(fd uintptr) error { return errors.New("reactor: unsupported platform") }
func (r *EpollReactor) Poll(timeoutMs int) (int, error) {
	return 0, errors.New("reactor: unsupported platform")
}
func (r *EpollReactor) Close() error { return nil }

var _ api.Reactor = (*EpollReactor)(nil)
