package qpair

import (
	"github.com/kvaster/nvmetcp/api"
	"github.com/kvaster/nvmetcp/core/protocol"
)

// Submit frames req as a CAPSULE_CMD and queues it for send. The caller
// has already populated Cmd/Dir/Payload; Submit allocates the CID,
// decides in-capsule vs R2T-driven transfer and appends the PDU to the
// send queue (actual socket writes happen in Flush/FlushSend).
func (qp *Qpair) Submit(req *Request) error {
	qp.mu.Lock()
	defer qp.mu.Unlock()

	if qp.state != StateRunning && qp.state != StateFabricConnectSend {
		return api.NewError(api.ErrCodeInternal, "qpair not running")
	}

	cid, ok := qp.cids.Alloc()
	if !ok {
		qp.stats.QueuedRequests++
		qp.needsPoll = true
		return api.ErrAgain
	}

	req.CID = cid
	req.Cmd.CID = cid
	req.state = ReqActive
	qp.lookup[cid] = req
	qp.outstanding = append(qp.outstanding, req)
	req.Qpair = qp

	inCapsule := req.Dir == DataHostToCtrlr && req.Len > 0 && req.Len <= qp.ioccsz
	req.InCapsule = inCapsule
	if req.Dir == DataHostToCtrlr && !inCapsule {
		req.R2TLRemain = uint32(req.Len)
	}

	hdr := make([]byte, protocol.CommonHeaderLen+protocol.SQECmdLen)
	sqe := EncodeSQE(req.Cmd)

	pdo := uint32(protocol.CommonHeaderLen + protocol.SQECmdLen)
	if qp.hostHdgstEnable {
		pdo += protocol.DigestLen
	}
	pdo = protocol.PdoAlign(pdo, qp.cpda)

	plen := pdo
	var dataIov []api.SendIov
	if inCapsule {
		plen += uint32(req.Len)
		if qp.hostDdgstEnable {
			plen += protocol.DigestLen
		}
	}

	common := protocol.CommonHeader{
		PduType: protocol.PduTypeCapsuleCmd,
		HLen:    protocol.CommonHeaderLen + protocol.SQECmdLen,
		Pdo:     uint8(pdo),
		PLen:    plen,
	}
	if qp.hostHdgstEnable {
		common.Flags |= protocol.FlagHDGSTF
	}
	if inCapsule && qp.hostDdgstEnable {
		common.Flags |= protocol.FlagDDGSTF
	}

	protocol.EncodeCapsuleCmdHdr(hdr, protocol.CapsuleCmdHdr{Common: common, SQE: sqe})
	if qp.hostHdgstEnable {
		hdgst := protocol.CRC32C(hdr[:protocol.CommonHeaderLen+protocol.SQECmdLen])
		hdr = appendDigest(hdr, hdgst)
	}
	for uint32(len(hdr)) < pdo {
		hdr = append(hdr, 0)
	}

	iovs := []api.SendIov{{Data: hdr}}
	if inCapsule {
		dataIov = payloadIovs(req.Payload)
		iovs = append(iovs, dataIov...)
		if qp.hostDdgstEnable {
			req.Ordering.InProgressAccel = qp.accelExec != nil
			ddgst := qp.dataDigest(sendIovBufs(dataIov))
			req.Ordering.InProgressAccel = false
			iovs = append(iovs, api.SendIov{Data: encodeU32(ddgst)})
			qp.stats.SendDdgsts++
		}
	}

	qp.enqueueSend(iovs, func() {
		qp.mu.Lock()
		req.Ordering.SendAcked = true
		done := req.Ordering.done()
		qp.mu.Unlock()
		if done {
			qp.completeRequest(req)
		}
	})

	qp.stats.SubmittedRequests++
	return nil
}

// enqueueSend appends iovs to the pending send queue under lock (caller
// already holds qp.mu).
func (qp *Qpair) enqueueSend(iovs []api.SendIov, onAcked func()) {
	qp.sendQueue = append(qp.sendQueue, pendingSend{iovs: iovs, onAcked: onAcked})
	qp.needsPoll = true
}

// Flush pushes as much of the queued send data into the socket as will
// fit, tracking the one in-flight zero-copy send by its sendmsg index
// and reclaiming completions reported by PollSendCompletions.
func (qp *Qpair) Flush() error {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	return qp.flushLocked()
}

func (qp *Qpair) flushLocked() error {
	qp.reapSendCompletionsLocked()

	for qp.inFlight == nil && len(qp.sendQueue) > 0 {
		next := qp.sendQueue[0]
		idx, err := qp.sock.SendAsync(next.iovs)
		if err == api.ErrAgain {
			qp.needsPoll = true
			return nil
		}
		if err != nil {
			return err
		}
		next.idx = idx
		qp.sendQueue = qp.sendQueue[1:]
		qp.inFlight = &next
	}
	if len(qp.sendQueue) == 0 && qp.inFlight == nil {
		qp.needsPoll = false
	}
	return nil
}

func (qp *Qpair) reapSendCompletionsLocked() {
	for {
		lo, hi, ok := qp.sock.PollSendCompletions()
		if !ok {
			return
		}
		if qp.inFlight != nil && idxInRange(qp.inFlight.idx, lo, hi) {
			done := qp.inFlight
			qp.inFlight = nil
			if done.onAcked != nil {
				qp.mu.Unlock()
				done.onAcked()
				qp.mu.Lock()
			}
		}
	}
}

// idxInRange reports whether idx falls in the inclusive [lo, hi] range,
// accounting for sendmsg-index wraparound past math.MaxUint32 back to 1.
func idxInRange(idx, lo, hi uint32) bool {
	if lo <= hi {
		return idx >= lo && idx <= hi
	}
	return idx >= lo || idx <= hi
}

func appendDigest(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func encodeU32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func payloadIovs(p Payload) []api.SendIov {
	switch p.Kind {
	case PayloadContig, PayloadMemoryDomain:
		return []api.SendIov{{Data: p.Buf, Key: p.Key}}
	case PayloadIov:
		iovs := make([]api.SendIov, len(p.Iov))
		for i, seg := range p.Iov {
			iovs[i] = api.SendIov{Data: seg}
		}
		return iovs
	default:
		return nil
	}
}

func sendIovBufs(iovs []api.SendIov) [][]byte {
	out := make([][]byte, len(iovs))
	for i, iov := range iovs {
		out[i] = iov.Data
	}
	return out
}
