package qpair

import (
	"context"
	"fmt"
	"time"

	"github.com/kvaster/nvmetcp/api"
	"github.com/kvaster/nvmetcp/core/protocol"
)

// Connect drives the IC_REQ/IC_RESP handshake over the already-dialed
// socket, negotiating digests, cpda and maxh2cdata. On success the
// qpair reaches StateFabricConnectSend; the caller then submits the
// NVMe-oF fabric CONNECT capsule itself via Submit and calls
// MarkRunning once it completes.
func (qp *Qpair) Connect(ctx context.Context) error {
	qp.mu.Lock()
	if qp.state != StateInvalid {
		qp.mu.Unlock()
		return fmt.Errorf("qpair: Connect called in state %v", qp.state)
	}
	qp.state = StateInitializing
	qp.recv.state = RecvAwaitPduReady

	pdu := protocol.EncodeICReq(protocol.ICReq{
		Pfv:    protocol.PfvCurrent,
		Hpda:   qp.hpda,
		HDGST:  qp.hostHdgstEnable,
		DDGST:  qp.hostDdgstEnable,
		MaxR2T: qp.maxr2t,
	})
	qp.enqueueSend([]api.SendIov{{Data: pdu}}, nil)
	qp.mu.Unlock()

	deadline := time.Now().Add(protocol.ICReqTimeoutSec * time.Second)
	for {
		if err := qp.Flush(); err != nil {
			return err
		}
		if _, err := qp.ProcessCompletions(16); err != nil {
			return err
		}
		if qp.State() == StateFabricConnectSend {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("qpair: ICREQ handshake timed out")
		}
		time.Sleep(time.Millisecond)
	}
}

// MarkRunning transitions the qpair to StateRunning once the caller's
// fabric CONNECT capsule has completed successfully.
func (qp *Qpair) MarkRunning() {
	qp.mu.Lock()
	qp.state = StateRunning
	qp.mu.Unlock()
}
