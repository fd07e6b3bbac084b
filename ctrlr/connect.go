package ctrlr

import (
	"github.com/kvaster/nvmetcp/qpair"
)

// connectDataLen is the size of the in-capsule data payload carried by
// a fabric CONNECT command: a 16-byte host identifier, a 2-byte
// controller id, 238 bytes reserved, and two 256-byte NQN fields
// (subsystem then host), matching the NVMe-oF Fabrics CONNECT command
// data structure. The admin command set beyond this single command is
// a non-goal, so only the fields this transport actually needs to
// populate are named.
const connectDataLen = 16 + 2 + 238 + 256 + 256

// connectData is the in-capsule payload of a fabric CONNECT command.
type connectData struct {
	HostID  [16]byte
	CNTLID  uint16
	SubNQN  string
	HostNQN string
}

// encode renders d into the wire-format connect data buffer. CNTLID of
// 0xFFFF requests dynamic controller id assignment, matching the
// initiator-side convention for a fresh admin-qpair connect.
func (d connectData) encode() []byte {
	buf := make([]byte, connectDataLen)
	copy(buf[0:16], d.HostID[:])
	buf[16] = byte(d.CNTLID)
	buf[17] = byte(d.CNTLID >> 8)
	copy(buf[256:512], []byte(d.SubNQN))
	copy(buf[512:768], []byte(d.HostNQN))
	return buf
}

// fabricConnectCmd packs the recfmt/qid/sqsize/kato fields a fabric
// CONNECT command carries into this transport's generic Command shape.
// recfmt is always 0 (the only format the spec defines); qid 0 selects
// the admin queue.
func fabricConnectCmd(qid uint16, sqsize uint16, kato uint32) qpair.Command {
	const recfmt = 0
	return qpair.Command{
		Opcode: qpair.OpcodeFabricConnect,
		CDW10:  uint32(recfmt) | uint32(qid)<<16,
		CDW11:  uint32(sqsize),
		CDW12:  kato,
	}
}

// buildConnectRequest constructs the Request a Controller submits to
// bring a qpair from FABRIC_CONNECT_SEND to RUNNING: an in-capsule
// write carrying the connect data, admin-command opcode 0x7F.
func buildConnectRequest(qid uint16, sqsize uint16, kato uint32, data connectData) *qpair.Request {
	payload := data.encode()
	return &qpair.Request{
		Cmd: fabricConnectCmd(qid, sqsize, kato),
		Dir: qpair.DataHostToCtrlr,
		Payload: qpair.Payload{
			Kind: qpair.PayloadContig,
			Buf:  payload,
			Len:  len(payload),
		},
	}
}
