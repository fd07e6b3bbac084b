package memdomain

import "sync"

// DeviceContext identifies the underlying NIC/device a protection domain
// is allocated against (e.g. "mlx5_0"). It stands in for libibverbs'
// ibv_context pointer identity.
type DeviceContext string

// PD is a protection domain handle. Callers never construct one
// directly; PDRegistry.GetPD hands out the single instance for a given
// device context.
type PD struct {
	Context DeviceContext
}

// PDRegistry is an idempotent cache of PD handles keyed by device
// context, mirroring rdma_utils's device list (minus hot-unplug, which
// this transport does not support — see DESIGN.md).
type PDRegistry struct {
	mu  sync.Mutex
	pds map[DeviceContext]*PD
}

// NewPDRegistry creates an empty registry.
func NewPDRegistry() *PDRegistry {
	return &PDRegistry{pds: make(map[DeviceContext]*PD)}
}

// GetPD returns the PD for ctx, allocating one on first use.
func (r *PDRegistry) GetPD(ctx DeviceContext) *PD {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pd, ok := r.pds[ctx]; ok {
		return pd
	}
	pd := &PD{Context: ctx}
	r.pds[ctx] = pd
	return pd
}
