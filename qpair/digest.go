package qpair

import (
	"github.com/kvaster/nvmetcp/accel"
	"github.com/kvaster/nvmetcp/core/protocol"
)

// dataDigest computes the NVMe/TCP data digest over bufs (treated as
// concatenated and zero-padded to the next 4-byte boundary), offloading
// to the qpair's accel executor when one is configured and computing it
// inline otherwise.
func (qp *Qpair) dataDigest(bufs [][]byte) uint32 {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	if pad := (4 - total%4) % 4; pad > 0 {
		bufs = append(append([][]byte{}, bufs...), make([]byte, pad))
	}

	if qp.accelExec == nil {
		return protocol.CRC32CMulti(bufs)
	}

	var out uint32
	done := make(chan struct{})
	seq := accel.NewSequence().OnComplete(func(error) { close(done) })
	seq.AppendCRC32CMulti(bufs, &out)
	if err := qp.accelExec.Submit(seq); err != nil {
		return protocol.CRC32CMulti(bufs)
	}
	<-done
	return out
}
