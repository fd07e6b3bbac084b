// Package ctrlr implements the controller and transport façade: the
// single entry point that dials an admin qpair, drives the fabric
// CONNECT handshake, and hands out additional I/O qpairs against the
// same target, mirroring struct spdk_nvme_ctrlr's NVDA_TCP transport
// ops table.
package ctrlr

import (
	"time"

	"github.com/kvaster/nvmetcp/memdomain"
	"github.com/kvaster/nvmetcp/qpair"
)

// MinQueueEntries is the smallest queue size construct/create_io_qpair
// accepts, mirroring SPDK_NVME_QUEUE_MIN_ENTRIES. NVMe and NVMe-oF both
// forbid submitting a full queue's worth of entries, so one slot of
// every qsize is always reserved.
const MinQueueEntries = 2

// TransportID names the remote target this controller connects to.
type TransportID struct {
	Traddr  string // IPv4/IPv6 address or hostname
	Trsvcid string // TCP port, as a string
	Subnqn  string // target subsystem NQN
}

// Options configures a Controller at construct time. Options are
// immutable after Construct returns.
type Options struct {
	HostNQN string
	HostID  [16]byte

	// Kato is the keep-alive timeout advertised in the fabric CONNECT
	// capsule; zero disables keep-alive.
	Kato time.Duration

	QueueSize int // admin qpair size; zero uses a built-in default
	MaxR2T    uint32

	EnableZeroCopySend bool
	EnableZeroCopyRecv bool
	TCPNoDelay         bool

	// DeviceContext identifies the NIC this controller's memory domain
	// (if any) is registered against (see memdomain.PDRegistry).
	DeviceContext memdomain.DeviceContext

	// CopyModuleName stands in for spdk_accel_get_opc_module_name's
	// result: memory-domain mode only activates when this equals
	// "mlx5", matching the real transport's accelerator-module gate.
	CopyModuleName string

	// The following mirror the real transport's three env-var gates
	// (SPDK_NVDA_TCP_DISABLE_MEM_DOMAIN / _DISABLE_ACCEL_SEQ /
	// _USE_TCP_MEM_DOMAIN), exposed as struct fields since this module
	// has no process-wide environment registration (§1 non-goal).
	DisableMemDomain bool
	DisableAccelSeq  bool
	UseTCPMemDomain  bool
}

const defaultAdminQueueSize = 32

func (o Options) queueSize() int {
	if o.QueueSize > 0 {
		return o.QueueSize
	}
	return defaultAdminQueueSize
}

// memoryDomainEnabled reports whether this controller should attempt to
// register a memory domain, mirroring nvme_tcp_memory_domain_enabled's
// "not disabled and the accelerator copy module is mlx5" gate.
func (o Options) memoryDomainEnabled() bool {
	return !o.DisableMemDomain && o.CopyModuleName == "mlx5"
}

// accelSequenceEnabled mirrors the admin-qpair branch that sets
// SPDK_NVME_CTRLR_ACCEL_SEQUENCE_SUPPORTED: memory domains must be
// enabled, and the dedicated accel-sequence disable gate must be clear.
func (o Options) accelSequenceEnabled() bool {
	return o.memoryDomainEnabled() && !o.DisableAccelSeq
}

// Stats is a snapshot of controller-wide counters, combining the admin
// qpair's Stats with the I/O qpair count.
type Stats struct {
	Admin        qpair.Stats
	IOQpairCount int
}
