package qpair

import (
	"github.com/kvaster/nvmetcp/api"
	"github.com/kvaster/nvmetcp/core/protocol"
)

// sendH2CDataLocked emits the H2C_DATA PDUs needed to satisfy req's
// current R2T, chunked to maxh2cdata. Caller holds qp.mu.
func (qp *Qpair) sendH2CDataLocked(req *Request) {
	for req.R2TLRemain > 0 {
		datal := req.R2TLRemain
		if datal > qp.maxh2cdata {
			datal = qp.maxh2cdata
		}
		last := datal == req.R2TLRemain
		qp.emitH2CData(req, req.Datao, datal, last)
		req.Datao += datal
		req.R2TLRemain -= datal
	}
}

func (qp *Qpair) emitH2CData(req *Request, datao, datal uint32, last bool) {
	hdgstLen := uint32(0)
	if qp.hostHdgstEnable {
		hdgstLen = protocol.DigestLen
	}
	pdo := protocol.PdoAlign(protocol.H2CDataHdrLen+hdgstLen, qp.cpda)
	ddgstLen := uint32(0)
	if qp.hostDdgstEnable {
		ddgstLen = protocol.DigestLen
	}
	plen := pdo + datal + ddgstLen

	hdr := make([]byte, protocol.H2CDataHdrLen)
	common := protocol.CommonHeader{Pdo: uint8(pdo), PLen: plen}
	if qp.hostHdgstEnable {
		common.Flags |= protocol.FlagHDGSTF
	}
	if qp.hostDdgstEnable {
		common.Flags |= protocol.FlagDDGSTF
	}
	protocol.EncodeH2CDataHdr(hdr, protocol.H2CDataHdr{
		Common: common,
		CCCID:  req.CID,
		TTag:   req.TTag,
		Datao:  datao,
		Datal:  datal,
	})
	if qp.hostHdgstEnable {
		hdgst := protocol.CRC32C(hdr[:protocol.H2CDataHdrLen])
		hdr = appendDigest(hdr, hdgst)
	}
	for uint32(len(hdr)) < pdo {
		hdr = append(hdr, 0)
	}

	dataIov := extractIovRange(req.Payload, int(datao), int(datal))
	iovs := append([]api.SendIov{{Data: hdr}}, dataIov...)
	if qp.hostDdgstEnable {
		req.Ordering.InProgressAccel = qp.accelExec != nil
		ddgst := qp.dataDigest(sendIovBufs(dataIov))
		req.Ordering.InProgressAccel = false
		iovs = append(iovs, api.SendIov{Data: encodeU32(ddgst)})
		qp.stats.SendDdgsts++
	}

	req.Ordering.H2CWaitAck = true
	qp.enqueueSend(iovs, func() {
		qp.mu.Lock()
		req.Ordering.H2CWaitAck = false
		if last {
			req.ActiveR2Ts--
			if req.hasPendingR2T {
				req.hasPendingR2T = false
				req.ActiveR2Ts++
				req.TTag = req.TTagNext
				req.R2TLRemain = req.R2TLRemainNext
				qp.sendH2CDataLocked(req)
			}
		}
		qp.mu.Unlock()
	})
}

// extractIovRange returns the [offset, offset+length) byte range of a
// request's payload as send segments, spanning contig buffers, iov
// chains and memory-domain-backed buffers alike.
func extractIovRange(p Payload, offset, length int) []api.SendIov {
	switch p.Kind {
	case PayloadContig, PayloadMemoryDomain:
		end := offset + length
		if end > len(p.Buf) {
			end = len(p.Buf)
		}
		if offset >= end {
			return nil
		}
		return []api.SendIov{{Data: p.Buf[offset:end], Key: p.Key}}
	case PayloadIov:
		var out []api.SendIov
		remainingOffset := offset
		remainingLen := length
		for _, seg := range p.Iov {
			if remainingLen <= 0 {
				break
			}
			segLen := len(seg)
			if remainingOffset >= segLen {
				remainingOffset -= segLen
				continue
			}
			start := remainingOffset
			end := segLen
			if end-start > remainingLen {
				end = start + remainingLen
			}
			out = append(out, api.SendIov{Data: seg[start:end]})
			remainingLen -= end - start
			remainingOffset = 0
		}
		return out
	default:
		return nil
	}
}
