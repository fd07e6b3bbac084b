package qpair

import (
	"github.com/kvaster/nvmetcp/accel"
	"github.com/kvaster/nvmetcp/api"
)

// PayloadKind distinguishes how a Request's data buffer is backed.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadContig
	PayloadIov
	PayloadZeroCopy
	PayloadMemoryDomain
)

// Payload describes a Request's data transfer buffer.
type Payload struct {
	Kind PayloadKind
	Buf  []byte   // PayloadContig
	Iov  [][]byte // PayloadIov
	Key  api.MemoryKey
	Len  int
}

// Ordering carries the bits §3's Request row names: independent flags
// that together gate exactly-once completion and R2T/H2C sequencing.
type Ordering struct {
	SendAcked       bool
	DataRecv        bool
	H2CWaitAck      bool
	R2TWaitH2C      bool
	InProgressAccel bool
	DigestOffloaded bool
}

// done reports whether both halves of the completion condition
// (§4.2 "CAPSULE_RESP ... complete when both send-ack and data-recv bits
// are set") have been observed.
func (o Ordering) done() bool { return o.SendAcked && o.DataRecv }

// CompletionFunc is invoked exactly once when a Request completes.
type CompletionFunc func(req *Request, cpl Completion)

// Request is one outstanding NVMe/TCP command, mirroring struct
// nvme_tcp_req: CID, direction, R2T bookkeeping, ordering bits and the
// PDU currently being built or parsed for it.
type Request struct {
	state ReqState
	Qpair *Qpair

	CID  uint16
	Cmd  Command
	Dir  DataDirection
	Payload

	InCapsule bool

	Datao         uint32
	ExpectedDatao uint32

	R2TLRemain      uint32
	ActiveR2Ts      uint32
	TTag            uint16
	TTagNext        uint16
	R2TLRemainNext  uint32
	hasPendingR2T   bool

	Ordering Ordering

	Cpl Completion

	StagingBuf []byte
	staging    *accel.Sequence

	zeroCopy []api.Chunk

	onComplete CompletionFunc
	completed  bool

	sendmsgIdx uint32
	hasSendIdx bool
}

// SetCompletion registers the callback fired exactly once when the
// request completes, for callers outside this package (ctrlr) that
// construct a Request directly rather than drawing one from a Pool.
func (r *Request) SetCompletion(fn CompletionFunc) { r.onComplete = fn }

// reset clears a Request for reuse, releasing any zero-copy chunk
// references it still holds. The slot may be handed to a different
// qpair afterward (SharedPool), so CID/Qpair are not preserved.
func (r *Request) reset() {
	if len(r.zeroCopy) > 0 && r.Qpair != nil && r.Qpair.sock != nil {
		r.Qpair.sock.FreeChunks(r.zeroCopy)
	}
	*r = Request{state: ReqFree}
}

// Pool allocates and releases Requests for a qpair. Two implementations
// exist: arenaPool (a private per-qpair array, the default) and
// SharedPool (drawn from a poll group, mirroring
// tqpair->flags.use_poll_group_req_pool).
type Pool interface {
	Get() (*Request, bool)
	Put(r *Request)
	Cap() int
}

// arenaPool is a private, fixed-size request arena owned by one qpair.
type arenaPool struct {
	reqs []Request
	free []*Request
}

// newArenaPool preallocates n free Request slots. Get/Put hand out
// slots independently of CID — the caller (Qpair.Submit) assigns the
// CID it got from its own CIDPool to whatever Request Get returns, so a
// SharedPool can back several qpairs' independent CID namespaces from
// one backing array without slot collisions.
func newArenaPool(n int) *arenaPool {
	p := &arenaPool{reqs: make([]Request, n)}
	p.free = make([]*Request, 0, n)
	for i := range p.reqs {
		p.reqs[i].state = ReqFree
		p.free = append(p.free, &p.reqs[i])
	}
	return p
}

func (p *arenaPool) Get() (*Request, bool) {
	if len(p.free) == 0 {
		return nil, false
	}
	r := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return r, true
}

func (p *arenaPool) Put(r *Request) {
	r.reset()
	p.free = append(p.free, r)
}

func (p *arenaPool) Cap() int { return len(p.reqs) }

// SharedPool is a request arena shared across every qpair attached to
// one poll group, used when a qpair opts into
// use_poll_group_req_pool-style sharing instead of a private arena.
type SharedPool struct {
	arena *arenaPool
}

// NewSharedPool preallocates a request arena sized for the whole poll
// group rather than one qpair.
func NewSharedPool(n int) *SharedPool {
	return &SharedPool{arena: newArenaPool(n)}
}

func (p *SharedPool) Get() (*Request, bool) { return p.arena.Get() }
func (p *SharedPool) Put(r *Request)        { p.arena.Put(r) }
func (p *SharedPool) Cap() int              { return p.arena.Cap() }

var (
	_ Pool = (*arenaPool)(nil)
	_ Pool = (*SharedPool)(nil)
)
