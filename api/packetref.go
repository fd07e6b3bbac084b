package api

import "sync/atomic"

// addRef atomically adjusts the reference count by delta and returns the
// resulting count.
func (p *PacketRef) addRef(delta int32) int32 {
	return atomic.AddInt32(&p.refs, delta)
}

// RefCount reports the current reference count, for tests and invariant
// checks (spec invariant: refs >= 1 while any request holds the packet).
func (p *PacketRef) RefCount() int32 {
	if p == nil {
		return 0
	}
	return atomic.LoadInt32(&p.refs)
}
