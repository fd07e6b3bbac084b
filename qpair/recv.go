package qpair

import (
	"encoding/binary"
	"fmt"

	"github.com/kvaster/nvmetcp/api"
	"github.com/kvaster/nvmetcp/core/protocol"
)

// recvState holds the PDU receive state machine's working state: the
// header scratch buffer shared by every PDU type, and the payload
// tracking fields used only while reassembling a C2H_DATA data area.
type recvState struct {
	state RecvState

	hdr    [256]byte // CH + PSH (+ hdgst); largest PDU header is IC_RESP at 128
	hdrOff int
	hdrNeed int

	ch           protocol.CommonHeader
	expectedHLen uint32
	hdgstLen     uint32

	// payload (C2H_DATA) tracking
	req         *Request
	datao       uint32
	datal       uint32
	lastPDU     bool
	success     bool
	padRemain   int
	dataRemain  int
	ddgstRemain int
	ddgstBuf    [4]byte
	ddgstOff    int
	destOff     int      // byte offset already consumed within this PDU's data area
	pduIov      [][]byte // zero-copy segments received for the PDU in flight, for digest verification
}

var discardBuf [256]byte

// ProcessCompletions drains as much of the receive stream as is
// immediately available, advancing the PDU state machine and firing up
// to max request completions. It never blocks: api.ErrAgain from the
// socket simply ends the call.
func (qp *Qpair) ProcessCompletions(max int) (reaped int, err error) {
	for reaped < max {
		completed, progressed, stepErr := qp.stepRecv()
		if stepErr != nil {
			return reaped, stepErr
		}
		if completed != nil {
			qp.completeRequest(completed)
			reaped++
			continue
		}
		if !progressed {
			return reaped, nil
		}
	}
	return reaped, nil
}

// stepRecv performs one unit of receive-state-machine work: it returns
// the request that just finished its data-recv half (if any; the caller
// still checks Ordering.done() via completeRequest), whether any bytes
// were consumed (progressed), and a fatal error if the stream must be
// torn down.
func (qp *Qpair) stepRecv() (completed *Request, progressed bool, err error) {
	qp.mu.Lock()
	defer qp.mu.Unlock()

	switch qp.recv.state {
	case RecvAwaitPduReady:
		qp.recv.hdrOff = 0
		qp.recv.hdrNeed = protocol.CommonHeaderLen
		qp.recv.state = RecvAwaitPduCH
		return nil, true, nil

	case RecvAwaitPduCH:
		n, rerr := qp.recvInto(qp.recv.hdr[qp.recv.hdrOff:qp.recv.hdrNeed])
		if rerr != nil {
			return nil, false, rerr
		}
		if n == 0 {
			return nil, false, nil
		}
		qp.recv.hdrOff += n
		if qp.recv.hdrOff < qp.recv.hdrNeed {
			return nil, true, nil
		}
		ch := protocol.DecodeCommonHeader(qp.recv.hdr[:protocol.CommonHeaderLen])
		qp.recv.ch = ch
		phase := protocol.PhaseNegotiated
		if qp.state == StateInitializing || qp.state == StateInvalid {
			phase = protocol.PhaseInvalid
		}
		expected, verr := protocol.ValidateCommonHeader(ch, phase)
		if verr != nil {
			return nil, false, qp.fatalRecv(verr)
		}
		qp.recv.expectedHLen = expected
		qp.recv.hdgstLen = 0
		if ch.PduType != protocol.PduTypeICResp && ch.HDGSTF() {
			qp.recv.hdgstLen = protocol.DigestLen
		}
		qp.recv.hdrNeed = int(expected) + int(qp.recv.hdgstLen)
		qp.recv.state = RecvAwaitPduPSH
		return nil, true, nil

	case RecvAwaitPduPSH:
		n, rerr := qp.recvInto(qp.recv.hdr[qp.recv.hdrOff:qp.recv.hdrNeed])
		if rerr != nil {
			return nil, false, rerr
		}
		if n == 0 {
			return nil, false, nil
		}
		qp.recv.hdrOff += n
		if qp.recv.hdrOff < qp.recv.hdrNeed {
			return nil, true, nil
		}
		if qp.recv.hdgstLen > 0 {
			got := binary.LittleEndian.Uint32(qp.recv.hdr[qp.recv.expectedHLen : qp.recv.expectedHLen+protocol.DigestLen])
			want := protocol.CRC32C(qp.recv.hdr[:qp.recv.expectedHLen])
			if got != want {
				return nil, false, qp.fatalRecv(&protocol.TermError{Fes: protocol.FesHeaderDigestError})
			}
		}
		return qp.dispatchHeader()

	case RecvAwaitPduPayload:
		return qp.stepPayload()

	case RecvQuiescing, RecvError:
		return nil, false, nil

	default:
		return nil, false, fmt.Errorf("qpair: unknown recv state %v", qp.recv.state)
	}
}

// recvInto performs one non-blocking copying receive into dst, treating
// api.ErrAgain as "no progress" rather than an error.
func (qp *Qpair) recvInto(dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	n, err := qp.sock.RecvBytes([][]byte{dst})
	if err == api.ErrAgain {
		return 0, nil
	}
	return n, err
}

func (qp *Qpair) fatalRecv(terr *protocol.TermError) error {
	qp.recv.state = RecvError
	fei := [4]byte{}
	binary.LittleEndian.PutUint32(fei[:], terr.ErrorOffset)
	pdu := protocol.EncodeTermReqHdr(protocol.PduTypeH2CTermReq, protocol.TermReqHdr{Fes: terr.Fes, Fei: fei})
	qp.enqueueSend([]api.SendIov{{Data: pdu}}, nil)
	return terr
}

// dispatchHeader handles the PDU types whose whole payload lives in the
// header scratch buffer (IC_RESP, CAPSULE_RESP, R2T, C2H_TERM_REQ) and
// sets up payload-phase state for C2H_DATA.
func (qp *Qpair) dispatchHeader() (completed *Request, progressed bool, err error) {
	hdr := qp.recv.hdr[:qp.recv.expectedHLen]
	switch qp.recv.ch.PduType {
	case protocol.PduTypeICResp:
		if e := qp.handleICResp(hdr); e != nil {
			return nil, false, qp.fatalRecv(e)
		}
		qp.recv.state = RecvAwaitPduReady
		return nil, true, nil

	case protocol.PduTypeCapsuleResp:
		req := qp.handleCapsuleResp(hdr)
		qp.recv.state = RecvAwaitPduReady
		return req, true, nil

	case protocol.PduTypeR2T:
		if e := qp.handleR2T(hdr); e != nil {
			return nil, false, qp.fatalRecv(e)
		}
		qp.recv.state = RecvAwaitPduReady
		return nil, true, nil

	case protocol.PduTypeC2HTermReq:
		th := protocol.DecodeTermReqHdr(hdr)
		qp.recv.state = RecvQuiescing
		return nil, false, fmt.Errorf("qpair: target sent C2H_TERM_REQ: %s", th.Fes)

	case protocol.PduTypeC2HData:
		qp.beginC2HDataPayload(hdr)
		qp.recv.state = RecvAwaitPduPayload
		return nil, true, nil

	default:
		return nil, false, qp.fatalRecv(&protocol.TermError{Fes: protocol.FesInvalidPduHeaderField, ErrorOffset: protocol.OffsetPduType})
	}
}

func (qp *Qpair) handleICResp(hdr []byte) *protocol.TermError {
	resp := protocol.DecodeICResp(hdr)
	if resp.Pfv != protocol.PfvCurrent {
		return &protocol.TermError{Fes: protocol.FesInvalidPduHeaderField}
	}
	if resp.MaxH2CData < protocol.MinMaxH2CData {
		return &protocol.TermError{Fes: protocol.FesInvalidPduHeaderField}
	}
	qp.hostHdgstEnable = qp.hostHdgstEnable && resp.HDGST
	qp.hostDdgstEnable = qp.hostDdgstEnable && resp.DDGST
	qp.cpda = resp.Cpda
	qp.maxh2cdata = resp.MaxH2CData

	digestBytes := 0
	if qp.hostDdgstEnable {
		digestBytes = protocol.DigestLen
	}
	bufSize := qp.recvBufFactor * (4096 + protocol.C2HDataHdrLen + digestBytes)
	_ = qp.sock.SetRecvBuf(bufSize)

	if qp.state == StateInitializing {
		qp.state = StateFabricConnectSend
	}
	return nil
}

func (qp *Qpair) handleCapsuleResp(hdr []byte) *Request {
	h := protocol.DecodeCapsuleRespHdr(hdr)
	cpl := DecodeCQE(h.CQE)
	req := qp.lookupLocked(cpl.CID)
	if req == nil {
		return nil
	}
	req.Cpl = cpl
	req.Ordering.DataRecv = true
	return req
}

func (qp *Qpair) handleR2T(hdr []byte) *protocol.TermError {
	h := protocol.DecodeR2THdr(hdr)
	req := qp.lookupLocked(h.CCCID)
	if req == nil {
		return &protocol.TermError{Fes: protocol.FesInvalidPduHeaderField}
	}
	if h.R2TO != req.Datao || uint64(h.R2TO)+uint64(h.R2TL) > uint64(req.Len) {
		return &protocol.TermError{Fes: protocol.FesInvalidPduHeaderField}
	}

	if req.ActiveR2Ts >= qp.maxr2t {
		if req.hasPendingR2T {
			return &protocol.TermError{Fes: protocol.FesR2TLimitExceeded}
		}
		req.hasPendingR2T = true
		req.TTagNext = h.TTag
		req.R2TLRemainNext = h.R2TL
		return nil
	}

	req.ActiveR2Ts++
	req.TTag = h.TTag
	req.R2TLRemain = h.R2TL
	req.state = ReqActiveR2T
	qp.sendH2CDataLocked(req)
	return nil
}

func (qp *Qpair) lookupLocked(cid uint16) *Request {
	if int(cid) >= len(qp.lookup) {
		return nil
	}
	return qp.lookup[cid]
}

func (qp *Qpair) beginC2HDataPayload(hdr []byte) {
	h := protocol.DecodeC2HDataHdr(hdr)
	req := qp.lookupLocked(h.CCCID)

	consumed := int(qp.recv.ch.HLen) + int(qp.recv.hdgstLen)
	pad := int(h.Common.Pdo) - consumed
	if pad < 0 {
		pad = 0
	}
	ddgstLen := 0
	if qp.recv.ch.DDGSTF() {
		ddgstLen = protocol.DigestLen
	}
	start, end := protocol.DataAreaRange(qp.recv.ch.PLen, uint32(h.Common.Pdo), qp.recv.ch.DDGSTF())
	dataLen := int(end) - int(start)
	if dataLen < 0 {
		dataLen = 0
	}

	qp.recv.req = req
	qp.recv.datao = h.Datao
	qp.recv.datal = h.Datal
	qp.recv.lastPDU = qp.recv.ch.Flags&protocol.FlagLastPDU != 0
	qp.recv.success = qp.recv.ch.Flags&protocol.FlagSuccess != 0
	qp.recv.padRemain = pad
	qp.recv.dataRemain = dataLen
	qp.recv.ddgstRemain = ddgstLen
	qp.recv.ddgstOff = 0
	qp.recv.destOff = 0
	qp.recv.pduIov = nil
}

func (qp *Qpair) stepPayload() (completed *Request, progressed bool, err error) {
	if qp.recv.padRemain > 0 {
		n := qp.recv.padRemain
		if n > len(discardBuf) {
			n = len(discardBuf)
		}
		got, rerr := qp.recvInto(discardBuf[:n])
		if rerr != nil {
			return nil, false, rerr
		}
		if got == 0 {
			return nil, false, nil
		}
		qp.recv.padRemain -= got
		return nil, true, nil
	}

	req := qp.recv.req
	if qp.recv.dataRemain > 0 {
		n, rerr := qp.recvPayloadData(req)
		if rerr != nil {
			return nil, false, rerr
		}
		if n == 0 {
			return nil, false, nil
		}
		return nil, true, nil
	}

	if qp.recv.ddgstRemain > 0 {
		got, rerr := qp.recvInto(qp.recv.ddgstBuf[qp.recv.ddgstOff:protocol.DigestLen])
		if rerr != nil {
			return nil, false, rerr
		}
		if got == 0 {
			return nil, false, nil
		}
		qp.recv.ddgstOff += got
		qp.recv.ddgstRemain -= got
		if qp.recv.ddgstRemain == 0 {
			if verr := qp.verifyDataDigest(req); verr != nil {
				return nil, false, qp.fatalRecv(verr)
			}
		}
		return nil, true, nil
	}

	return qp.finishC2HData(req), true, nil
}

// recvPayloadData reads the data-area bytes of the current C2H_DATA PDU
// directly into the request's destination buffer (contig case) or as
// zero-copy chunk references appended to the request (zero-copy case).
func (qp *Qpair) recvPayloadData(req *Request) (int, error) {
	if req == nil {
		n := qp.recv.dataRemain
		if n > len(discardBuf) {
			n = len(discardBuf)
		}
		got, err := qp.recvInto(discardBuf[:n])
		qp.recv.dataRemain -= got
		return got, err
	}

	if req.Payload.Kind == PayloadZeroCopy {
		chunks, err := qp.sock.RecvChunks(qp.recv.dataRemain)
		if err == api.ErrAgain || (err == nil && len(chunks) == 0) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		n := 0
		for _, c := range chunks {
			req.zeroCopy = append(req.zeroCopy, c)
			req.Payload.Iov = append(req.Payload.Iov, c.Data)
			qp.recv.pduIov = append(qp.recv.pduIov, c.Data)
			n += len(c.Data)
		}
		qp.stats.ReceivedDataIovs += uint64(len(chunks))
		qp.recv.dataRemain -= n
		return n, nil
	}

	start := int(qp.recv.datao) + qp.recv.destOff
	end := start + qp.recv.dataRemain
	if end > len(req.Payload.Buf) {
		end = len(req.Payload.Buf)
	}
	if start >= end {
		qp.recv.dataRemain = 0
		return 0, nil
	}
	n, err := qp.recvInto(req.Payload.Buf[start:end])
	qp.recv.destOff += n
	qp.recv.dataRemain -= n
	return n, err
}

func (qp *Qpair) verifyDataDigest(req *Request) *protocol.TermError {
	if req == nil {
		return nil
	}
	var actual uint32
	if req.Payload.Kind == PayloadZeroCopy {
		actual = qp.dataDigest(qp.recv.pduIov)
	} else {
		start := int(qp.recv.datao)
		end := start + int(qp.recv.datal)
		if end > len(req.Payload.Buf) {
			end = len(req.Payload.Buf)
		}
		actual = qp.dataDigest([][]byte{req.Payload.Buf[start:end]})
	}
	want := binary.LittleEndian.Uint32(qp.recv.ddgstBuf[:])
	if actual != want {
		return &protocol.TermError{Fes: protocol.FesDataTransferError}
	}
	qp.stats.RecvDdgsts++
	return nil
}

func (qp *Qpair) finishC2HData(req *Request) *Request {
	qp.stats.ReceivedDataPdus++
	qp.recv.state = RecvAwaitPduReady
	if req == nil {
		return nil
	}
	req.ExpectedDatao = qp.recv.datao + qp.recv.datal
	if qp.recv.lastPDU || qp.recv.success {
		req.Ordering.DataRecv = true
	}
	if qp.recv.success {
		return req
	}
	return nil
}
