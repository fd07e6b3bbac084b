//go:build linux

package affinity

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinPlatform locks the calling goroutine to its current OS thread and
// restricts that thread to cpuID via sched_setaffinity, grounded on the
// teacher's transport/tcp/affinity_linux.go raw-syscall approach, over
// golang.org/x/sys/unix.CPUSet instead of a hand-rolled bitmask and
// syscall.RawSyscall (this module already depends on x/sys for the
// epoll reactor and dialer socket options).
func pinPlatform(cpuID int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}

// unpinPlatform restores the calling thread's affinity to every CPU the
// process can see.
func unpinPlatform() error {
	var set unix.CPUSet
	for i := 0; i < runtime.NumCPU(); i++ {
		set.Set(i)
	}
	return unix.SchedSetaffinity(0, &set)
}
