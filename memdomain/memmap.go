package memdomain

import (
	"sync"

	"github.com/kvaster/nvmetcp/api"
)

// AccessFlags mirrors ibv_access_flags for the subset this transport
// cares about: local/remote read-write permission on a registered
// region, plus the two device-driven additions rdma_utils applies
// automatically (IWARP needs REMOTE_WRITE for RDMA_READ; relaxed
// ordering is requested opportunistically).
type AccessFlags uint32

const (
	AccessLocalWrite AccessFlags = 1 << iota
	AccessRemoteWrite
	AccessRemoteRead
	AccessRelaxedOrdering
)

// TranslationType distinguishes a raw memory-region handle from an
// opaque remote key, matching the two notification paths rdma_utils
// supports (direct ibv_mr vs. a hook-supplied rkey).
type TranslationType int

const (
	TranslationMR TranslationType = iota
	TranslationKey
)

// Translation is the result of resolving an address range against a
// MemMap: a local key usable by this host's NIC and, for RDMA-capable
// transports, a remote key the peer can use to address the same range.
type Translation struct {
	Type      TranslationType
	LocalKey  uint64
	RemoteKey uint64
	Addr      uintptr
	Len       int
}

// RegisterFn is invoked when a span of process memory is registered
// with the device, producing the keys that cover it.
type RegisterFn func(addr uintptr, length int) (localKey, remoteKey uint64, err error)

// UnregisterFn tears down a previously registered span.
type UnregisterFn func(addr uintptr, length int)

type region struct {
	addr      uintptr
	length    int
	localKey  uint64
	remoteKey uint64
}

func (r region) covers(addr uintptr, length int) bool {
	return addr >= r.addr && addr+uintptr(length) <= r.addr+uintptr(r.length)
}

// MemMap holds the registered-region table for one (pd, accessFlags)
// pair. Regions are installed via RegisterSpan as the buffer pool grows
// (mirroring rdma_utils's SPDK_MEM_MAP_NOTIFY_REGISTER callback) and
// torn down via UnregisterSpan.
type MemMap struct {
	pd          *PD
	accessFlags AccessFlags
	register    RegisterFn
	unregister  UnregisterFn

	mu       sync.Mutex
	regions  []region
	refCount int
}

// RegisterSpan registers [addr, addr+length) and records the resulting
// keys for later Translate calls.
func (m *MemMap) RegisterSpan(addr uintptr, length int) error {
	localKey, remoteKey, err := m.register(addr, length)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.regions = append(m.regions, region{addr: addr, length: length, localKey: localKey, remoteKey: remoteKey})
	m.mu.Unlock()
	return nil
}

// UnregisterSpan removes the region starting at addr, if present, and
// invokes the unregister hook.
func (m *MemMap) UnregisterSpan(addr uintptr, length int) {
	m.mu.Lock()
	for i, r := range m.regions {
		if r.addr == addr && r.length == length {
			m.regions = append(m.regions[:i], m.regions[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	m.unregister(addr, length)
}

// Translate resolves [addr, addr+length) against the registered
// regions. The match must cover the entire requested range; a region
// that only partially overlaps is not a valid translation.
func (m *MemMap) Translate(addr uintptr, length int) (Translation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regions {
		if r.covers(addr, length) {
			typ := TranslationMR
			if r.remoteKey != 0 {
				typ = TranslationKey
			}
			return Translation{Type: typ, LocalKey: r.localKey, RemoteKey: r.remoteKey, Addr: addr, Len: length}, nil
		}
	}
	return Translation{}, api.ErrShortTranslation
}

type mapKey struct {
	pd    *PD
	flags AccessFlags
}

// MemMapRegistry caches MemMaps by (pd, accessFlags), reference-counted
// so that every caller asking for the same access pattern on the same
// PD shares one registration table.
type MemMapRegistry struct {
	mu   sync.Mutex
	maps map[mapKey]*MemMap
}

// NewMemMapRegistry creates an empty registry.
func NewMemMapRegistry() *MemMapRegistry {
	return &MemMapRegistry{maps: make(map[mapKey]*MemMap)}
}

// CreateMemMap returns the MemMap for (pd, flags), creating it with the
// given hooks on first use and incrementing its refcount on every call.
func (r *MemMapRegistry) CreateMemMap(pd *PD, flags AccessFlags, register RegisterFn, unregister UnregisterFn) *MemMap {
	key := mapKey{pd: pd, flags: flags}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.maps[key]; ok {
		m.mu.Lock()
		m.refCount++
		m.mu.Unlock()
		return m
	}
	m := &MemMap{pd: pd, accessFlags: flags, register: register, unregister: unregister, refCount: 1}
	r.maps[key] = m
	return m
}

// FreeMemMap drops a reference to m, removing it from the registry once
// the last holder releases it.
func (r *MemMapRegistry) FreeMemMap(m *MemMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.mu.Lock()
	m.refCount--
	done := m.refCount == 0
	m.mu.Unlock()
	if done {
		delete(r.maps, mapKey{pd: m.pd, flags: m.accessFlags})
	}
}
