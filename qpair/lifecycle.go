package qpair

import "github.com/kvaster/nvmetcp/api"

// completeRequest fires a request's completion callback exactly once,
// the instant both ordering bits (send-ack and data-recv) are set, then
// releases the request to its pool — except for a zero-copy payload,
// whose request stays outstanding (holding its PacketRef) until the
// caller explicitly calls FreeRequest once it is done with the buffer.
func (qp *Qpair) completeRequest(req *Request) {
	qp.mu.Lock()
	if req.completed || !req.Ordering.done() {
		qp.mu.Unlock()
		return
	}
	req.completed = true
	cb := req.onComplete
	cpl := req.Cpl
	zeroCopy := req.Payload.Kind == PayloadZeroCopy
	qp.mu.Unlock()

	if cb != nil {
		cb(req, cpl)
	}
	if !zeroCopy {
		_ = qp.FreeRequest(req)
	}
}

// FreeRequest releases a request's CID and returns its slot to the pool.
// Freeing an already-free request leaves its state unchanged and reports
// api.ErrAlready.
func (qp *Qpair) FreeRequest(req *Request) error {
	qp.mu.Lock()
	if req.state == ReqFree {
		qp.mu.Unlock()
		return api.ErrAlready
	}
	cid := req.CID
	qp.cids.Free(cid)
	if int(cid) < len(qp.lookup) {
		qp.lookup[cid] = nil
	}
	for i, r := range qp.outstanding {
		if r == req {
			qp.outstanding = append(qp.outstanding[:i], qp.outstanding[i+1:]...)
			break
		}
	}
	req.state = ReqFree
	qp.stats.OutstandingReqs = uint64(len(qp.outstanding))
	qp.mu.Unlock()

	qp.reqPool.Put(req)
	return nil
}

// Abort synthesizes an ABORTED_SQ_DELETION completion for cid, used by
// Disconnect and by a controller-level abort command.
func (qp *Qpair) Abort(cid uint16) error {
	qp.mu.Lock()
	req := qp.lookupLocked(cid)
	if req == nil {
		qp.mu.Unlock()
		return api.ErrNotFound
	}
	req.Cpl = Completion{CID: cid, SCT: SCTGeneric, SC: SCAbortedSQDeletion}
	req.Ordering.SendAcked = true
	req.Ordering.DataRecv = true
	qp.mu.Unlock()

	qp.completeRequest(req)
	return nil
}

// Disconnect tears the qpair down: outstanding requests not mid-accel
// are aborted immediately, others wait for their in_progress_accel bit
// to clear before the socket is actually closed. Implements
// reactor.Member, called by a poll group that gives up on this qpair
// (e.g. a failed send flush).
func (qp *Qpair) Disconnect() error {
	qp.mu.Lock()
	if qp.state == StateExiting {
		qp.mu.Unlock()
		return nil
	}
	qp.state = StateExiting
	qp.recv.state = RecvQuiescing

	var toAbort []uint16
	var pending bool
	for _, r := range qp.outstanding {
		if r.Ordering.InProgressAccel {
			pending = true
			continue
		}
		toAbort = append(toAbort, r.CID)
	}
	qp.mu.Unlock()

	for _, cid := range toAbort {
		_ = qp.Abort(cid)
	}
	if pending {
		return api.ErrAgain
	}
	return qp.sock.Close(false)
}
