//go:build !linux

package affinity

import "github.com/kvaster/nvmetcp/api"

// pinPlatform is a stub for platforms without a sched_setaffinity
// equivalent wired up; this transport targets Linux.
func pinPlatform(cpuID int) error { return api.ErrNotSupported }

// unpinPlatform is a stub counterpart to pinPlatform.
func unpinPlatform() error { return api.ErrNotSupported }
