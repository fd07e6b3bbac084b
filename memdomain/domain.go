package memdomain

import "sync"

// DomainType distinguishes the transport a memory domain advertises
// itself against, analogous to SPDK_DMA_DEVICE_TYPE_RDMA vs
// SPDK_DMA_DEVICE_TYPE_TCP.
type DomainType int

const (
	DomainTypeRDMA DomainType = iota
	DomainTypeTCP
)

// MemoryDomain is the handle advertised to upper layers via
// get_memory_domains so that a remote initiator's accelerator or DMA
// engine can address this host's buffers directly.
type MemoryDomain struct {
	pd         *PD
	domainType DomainType

	mu       sync.Mutex
	refCount int
}

// PD returns the protection domain this memory domain is scoped to.
func (d *MemoryDomain) PD() *PD { return d.pd }

// Type returns the domain's transport type.
func (d *MemoryDomain) Type() DomainType { return d.domainType }

type domainKey struct {
	pd         *PD
	domainType DomainType
}

// DomainRegistry is a singleton cache of MemoryDomains keyed by
// (pd, type), reference-counted exactly like rdma_utils's
// g_memory_domains list.
type DomainRegistry struct {
	mu      sync.Mutex
	domains map[domainKey]*MemoryDomain
}

// NewDomainRegistry creates an empty registry.
func NewDomainRegistry() *DomainRegistry {
	return &DomainRegistry{domains: make(map[domainKey]*MemoryDomain)}
}

// GetMemoryDomain returns the domain for (pd, domainType), creating it
// on first use and incrementing its refcount on every call.
func (r *DomainRegistry) GetMemoryDomain(pd *PD, domainType DomainType) *MemoryDomain {
	key := domainKey{pd: pd, domainType: domainType}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.domains[key]; ok {
		d.mu.Lock()
		d.refCount++
		d.mu.Unlock()
		return d
	}
	d := &MemoryDomain{pd: pd, domainType: domainType, refCount: 1}
	r.domains[key] = d
	return d
}

// PutMemoryDomain drops a reference, destroying the domain once the
// last holder releases it.
func (r *DomainRegistry) PutMemoryDomain(d *MemoryDomain) {
	if d == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d.mu.Lock()
	d.refCount--
	done := d.refCount == 0
	d.mu.Unlock()
	if done {
		delete(r.domains, domainKey{pd: d.pd, domainType: d.domainType})
	}
}
