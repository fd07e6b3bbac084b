// Package affinity binds the calling OS thread to a CPU core, used to
// keep a qpair's single-threaded recv/send work on one core for cache
// locality. Platform-specific pinning lives in affinity_linux.go and
// affinity_stub.go, mirroring the teacher's affinity_linux.go/
// affinity_windows.go/affinity_stub.go split.
package affinity

import "github.com/kvaster/nvmetcp/api"

// ThreadAffinity implements api.Affinity over the host OS's native
// thread-affinity syscall.
type ThreadAffinity struct{}

// New constructs a ThreadAffinity.
func New() *ThreadAffinity { return &ThreadAffinity{} }

// Pin binds the calling OS thread to cpuID. numaID is advisory; Linux's
// sched_setaffinity has no NUMA-node argument, so it is accepted for
// interface symmetry and otherwise ignored.
func (t *ThreadAffinity) Pin(cpuID, numaID int) error {
	return pinPlatform(cpuID)
}

// Unpin clears any CPU binding, allowing the calling thread to run on
// any core again.
func (t *ThreadAffinity) Unpin() error {
	return unpinPlatform()
}

var _ api.Affinity = (*ThreadAffinity)(nil)
