package ctrlr

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kvaster/nvmetcp/accel"
	"github.com/kvaster/nvmetcp/api"
	"github.com/kvaster/nvmetcp/memdomain"
	"github.com/kvaster/nvmetcp/qpair"
)

// Controller is one connection to a remote NVMe-oF/TCP target: an admin
// qpair plus zero or more I/O qpairs sharing its dial options, memory
// domain and accelerator executor. Mirrors struct spdk_nvme_ctrlr as
// narrowed to this transport's fields.
type Controller struct {
	mu sync.Mutex

	trid TransportID
	opts Options

	dialer api.Dialer
	admin  *qpair.Qpair
	ioQ    map[uint16]*qpair.Qpair

	pdRegistry     *memdomain.PDRegistry
	domainRegistry *memdomain.DomainRegistry
	memoryDomain   *memdomain.MemoryDomain

	accelExec *accel.Executor

	accelSeqSupported bool
}

// Construct dials the admin qpair at trid, runs the IC_REQ/IC_RESP and
// fabric CONNECT handshakes, and probes memory-domain/accel-sequence
// capability, mirroring nvme_tcp_ctrlr_construct plus
// nvme_tcp_qpair_connect's capability-probe block.
func Construct(ctx context.Context, dialer api.Dialer, trid TransportID, opts Options) (*Controller, error) {
	c := &Controller{
		trid:           trid,
		opts:           opts,
		dialer:         dialer,
		ioQ:            make(map[uint16]*qpair.Qpair),
		pdRegistry:     memdomain.NewPDRegistry(),
		domainRegistry: memdomain.NewDomainRegistry(),
	}

	if opts.accelSequenceEnabled() {
		c.accelExec = accel.NewExecutor(1, nil)
		c.accelSeqSupported = true
	}

	sock, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	admin := qpair.NewQpair(sock, qpair.Options{
		ID:         0,
		NumEntries: opts.queueSize() - 1,
		MaxR2T:     opts.MaxR2T,
		Accel:      c.accelExec,
	})
	if err := admin.Connect(ctx); err != nil {
		_ = sock.Close(true)
		return nil, fmt.Errorf("ctrlr: admin qpair connect: %w", err)
	}
	c.admin = admin

	if err := c.connectFabric(ctx, admin, 0, uint16(opts.queueSize()-1)); err != nil {
		_ = sock.Close(true)
		return nil, err
	}
	admin.MarkRunning()

	c.probeMemoryDomain()

	return c, nil
}

// dial opens the admin qpair's TCP connection against trid.
func (c *Controller) dial(ctx context.Context) (api.Socket, error) {
	addr := net.JoinHostPort(c.trid.Traddr, c.trid.Trsvcid)
	return c.dialer.Dial(ctx, "tcp", addr, api.DialOptions{
		EnableZeroCopySend: c.opts.EnableZeroCopySend,
		EnableZeroCopyRecv: c.opts.EnableZeroCopyRecv,
		TCPNoDelay:         c.opts.TCPNoDelay,
	})
}

// connectFabric submits the NVMe-oF fabric CONNECT capsule on qp and
// waits for its completion, the step left to this package by
// qpair.Connect (which only drives IC_REQ/IC_RESP).
func (c *Controller) connectFabric(ctx context.Context, qp *qpair.Qpair, qid uint16, sqsize uint16) error {
	req := buildConnectRequest(qid, sqsize, uint32(c.opts.Kato/time.Millisecond), connectData{
		HostID:  c.opts.HostID,
		CNTLID:  0xFFFF,
		SubNQN:  c.trid.Subnqn,
		HostNQN: c.opts.HostNQN,
	})

	done := make(chan qpair.Completion, 1)
	req.SetCompletion(func(_ *qpair.Request, cpl qpair.Completion) {
		done <- cpl
	})

	if err := qp.Submit(req); err != nil {
		return fmt.Errorf("ctrlr: submit fabric connect: %w", err)
	}

	for {
		if err := qp.Flush(); err != nil {
			return err
		}
		if _, err := qp.ProcessCompletions(16); err != nil {
			return err
		}
		select {
		case cpl := <-done:
			if cpl.SC != 0 || cpl.SCT != qpair.SCTGeneric {
				return fmt.Errorf("ctrlr: fabric connect failed: sct=%d sc=%d", cpl.SCT, cpl.SC)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		time.Sleep(time.Millisecond)
	}
}

// probeMemoryDomain registers a PD/memory-domain pair when the
// controller's options enable memory-domain mode, mirroring
// nvme_tcp_qpair_connect's PD/memory-domain acquisition block.
func (c *Controller) probeMemoryDomain() {
	if !c.opts.memoryDomainEnabled() || c.opts.DeviceContext == "" {
		return
	}
	pd := c.pdRegistry.GetPD(c.opts.DeviceContext)
	domainType := memdomain.DomainTypeRDMA
	if c.opts.UseTCPMemDomain {
		domainType = memdomain.DomainTypeTCP
	}
	c.mu.Lock()
	c.memoryDomain = c.domainRegistry.GetMemoryDomain(pd, domainType)
	c.mu.Unlock()
}

// CreateIOQpair dials and connects a new I/O qpair against the same
// target, enforcing the reserved-slot rule (qsize-1 usable entries)
// mirroring nvme_tcp_ctrlr_create_qpair.
func (c *Controller) CreateIOQpair(ctx context.Context, qid uint16, qsize int, qprio int) (*qpair.Qpair, error) {
	if qsize < MinQueueEntries {
		return nil, api.NewError(api.ErrCodeInvalidArgument,
			fmt.Sprintf("ctrlr: queue size %d below minimum %d", qsize, MinQueueEntries))
	}

	c.mu.Lock()
	if _, exists := c.ioQ[qid]; exists {
		c.mu.Unlock()
		return nil, api.ErrAlreadyExists
	}
	c.mu.Unlock()

	sock, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	qp := qpair.NewQpair(sock, qpair.Options{
		ID:         qid,
		NumEntries: qsize - 1,
		MaxR2T:     c.opts.MaxR2T,
		Accel:      c.accelExec,
	})
	if err := qp.Connect(ctx); err != nil {
		_ = sock.Close(true)
		return nil, fmt.Errorf("ctrlr: io qpair %d connect: %w", qid, err)
	}
	if err := c.connectFabric(ctx, qp, qid, uint16(qsize-1)); err != nil {
		_ = sock.Close(true)
		return nil, err
	}
	qp.MarkRunning()

	c.mu.Lock()
	c.ioQ[qid] = qp
	c.mu.Unlock()

	return qp, nil
}

// DeleteIOQpair disconnects and forgets an I/O qpair previously
// returned by CreateIOQpair.
func (c *Controller) DeleteIOQpair(qid uint16) error {
	c.mu.Lock()
	qp, ok := c.ioQ[qid]
	if ok {
		delete(c.ioQ, qid)
	}
	c.mu.Unlock()
	if !ok {
		return api.ErrNotFound
	}
	return qp.Disconnect()
}

// GetMemoryDomains copies this controller's memory domain (if any) into
// buf, returning the number of domains written, mirroring
// nvme_tcp_ctrlr_get_memory_domains's "disabled returns 0" contract.
func (c *Controller) GetMemoryDomains(buf []*memdomain.MemoryDomain) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.memoryDomain == nil || !c.opts.memoryDomainEnabled() {
		return 0, nil
	}
	if len(buf) > 0 {
		buf[0] = c.memoryDomain
	}
	return 1, nil
}

// GetMaxXferSize returns the largest single transfer this transport
// will attempt, which this host-side implementation does not cap.
func (c *Controller) GetMaxXferSize() uint32 {
	return ^uint32(0)
}

// GetMaxSGEs returns the maximum number of scatter-gather elements a
// single command may carry. The fabric write path this transport
// implements uses one keyed SGL descriptor per command.
func (c *Controller) GetMaxSGEs() int {
	return 1
}

// AccelSequenceSupported reports whether this controller negotiated
// accelerator-sequence offload on its admin qpair.
func (c *Controller) AccelSequenceSupported() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accelSeqSupported
}

// Stats returns a snapshot of the admin qpair's counters plus the
// current I/O qpair count.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	n := len(c.ioQ)
	c.mu.Unlock()
	return Stats{Admin: c.admin.Stats(), IOQpairCount: n}
}

// Disconnect tears down every I/O qpair then the admin qpair itself.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	ioQ := make([]*qpair.Qpair, 0, len(c.ioQ))
	for _, qp := range c.ioQ {
		ioQ = append(ioQ, qp)
	}
	c.ioQ = make(map[uint16]*qpair.Qpair)
	domain := c.memoryDomain
	c.memoryDomain = nil
	c.mu.Unlock()

	var firstErr error
	for _, qp := range ioQ {
		if err := qp.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if domain != nil {
		c.domainRegistry.PutMemoryDomain(domain)
	}
	if err := c.admin.Disconnect(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
