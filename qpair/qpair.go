package qpair

import (
	"sync"

	"github.com/kvaster/nvmetcp/accel"
	"github.com/kvaster/nvmetcp/api"
	"github.com/kvaster/nvmetcp/pool"
	"github.com/kvaster/nvmetcp/reactor"
)

// defaultIoccszBytes is the in-capsule data threshold used when the
// controller has not negotiated a smaller one: admin and fabric-connect
// qpairs accept up to this much data inline.
const defaultIoccszBytes = 8192

// Options configures a new Qpair.
type Options struct {
	ID         uint16
	NumEntries int // N; usable CIDs are [0, NumEntries)

	MaxR2T      uint32
	Hpda        uint8
	IoccszBytes int

	// ReqPool overrides the default private arena, used when the qpair
	// draws requests from a poll-group-level SharedPool instead.
	ReqPool Pool

	// Accel, when non-nil, offloads every data-digest computation
	// (in-capsule data, H2C_DATA and C2H_DATA verification) to the
	// executor; nil means compute digests inline.
	Accel *accel.Executor

	// RecvBufFactor scales the socket receive buffer once maxh2cdata is
	// known from IC_RESP (§4.2 IC_RESP dispatch).
	RecvBufFactor int
}

// pendingSend is one queued outbound PDU awaiting a socket send slot.
type pendingSend struct {
	iovs    []api.SendIov
	onAcked func()
	idx     uint32
}

// Qpair is one NVMe/TCP connection's engine: CID allocator, request
// table, send queue and PDU receive state machine, mirroring struct
// nvme_tcp_qpair.
type Qpair struct {
	mu sync.Mutex

	id      uint16
	state   State
	sock    api.Socket
	reqPool Pool
	cids    *pool.CIDPool
	lookup  []*Request // indexed by CID
	outstanding []*Request // insertion order, for timeout scanning

	hostHdgstEnable bool
	hostDdgstEnable bool
	cpda            uint8
	hpda            uint8
	maxh2cdata      uint32
	maxr2t          uint32
	ioccsz          int
	recvBufFactor   int

	accelExec *accel.Executor

	sendQueue []pendingSend
	inFlight  *pendingSend
	zeroCopyOut bool

	recv recvState

	reservedReq *Request

	needsPoll bool
	icreqSendAck bool
	inConnectPoll bool

	stats Stats

	onTimeout func(req *Request)
}

// NewQpair constructs a Qpair bound to sock, attached to the given
// socket but not yet connected (callers drive Connect separately).
func NewQpair(sock api.Socket, opts Options) *Qpair {
	if opts.NumEntries <= 0 {
		opts.NumEntries = 128
	}
	if opts.IoccszBytes <= 0 {
		opts.IoccszBytes = defaultIoccszBytes
	}
	if opts.RecvBufFactor <= 0 {
		opts.RecvBufFactor = 4
	}

	reqPool := opts.ReqPool
	if reqPool == nil {
		reqPool = newArenaPool(opts.NumEntries)
	}

	qp := &Qpair{
		id:            opts.ID,
		state:         StateInvalid,
		sock:          sock,
		reqPool:       reqPool,
		cids:          pool.NewCIDPool(opts.NumEntries),
		lookup:        make([]*Request, opts.NumEntries),
		maxr2t:        opts.MaxR2T,
		hpda:          opts.Hpda,
		ioccsz:        opts.IoccszBytes,
		recvBufFactor: opts.RecvBufFactor,
		accelExec:     opts.Accel,
	}
	if qp.maxr2t == 0 {
		qp.maxr2t = 1
	}
	qp.recv.state = RecvAwaitPduReady
	return qp
}

// ID returns the qpair identifier (0 for the admin qpair).
func (qp *Qpair) ID() uint16 { return qp.id }

// State returns the current connection lifecycle state.
func (qp *Qpair) State() State {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	return qp.state
}

// Stats returns a snapshot of the per-qpair counters.
func (qp *Qpair) Stats() Stats {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	return qp.stats
}

// SetTimeoutCallback registers the per-process request-timeout callback
// (§5 "triggered from qpair_check_timeout").
func (qp *Qpair) SetTimeoutCallback(fn func(req *Request)) {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	qp.onTimeout = fn
}

// Socket implements reactor.Member.
func (qp *Qpair) Socket() api.Socket { return qp.sock }

// NeedsPoll implements reactor.Member: a qpair must be polled even
// without socket readiness while connecting or while requests are
// queued waiting on resources (§4.5 "Scheduling fairness").
func (qp *Qpair) NeedsPoll() bool {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	return qp.needsPoll || qp.state == StateFabricConnectPoll || qp.state == StateInitializing || len(qp.sendQueue) > 0
}

// FlushSend implements reactor.Member.
func (qp *Qpair) FlushSend() (empty bool, err error) {
	if err := qp.Flush(); err != nil {
		return false, err
	}
	qp.mu.Lock()
	defer qp.mu.Unlock()
	return len(qp.sendQueue) == 0 && qp.inFlight == nil, nil
}

// HandleReadable implements reactor.Member.
func (qp *Qpair) HandleReadable() error {
	_, err := qp.ProcessCompletions(256)
	return err
}

var _ reactor.Member = (*Qpair)(nil)
