package qpair

import "encoding/binary"

// Opcode is an NVMe command opcode. Only the data-bearing I/O opcodes
// this transport's R2T/in-capsule logic cares about are named; any value
// is otherwise passed through unmodified.
type Opcode uint8

const (
	OpcodeFlush Opcode = 0x00
	OpcodeWrite Opcode = 0x01
	OpcodeRead  Opcode = 0x02

	// OpcodeFabricConnect is the NVMe-oF Fabrics command set's CONNECT
	// opcode (0x7F in the Fabrics submission queue entry), used by ctrlr
	// to bring a qpair from FABRIC_CONNECT_SEND to RUNNING.
	OpcodeFabricConnect Opcode = 0x7F
)

// DataDirection classifies a command's data transfer, driving whether
// the transport expects R2T (host write) or C2H_DATA (host read).
type DataDirection int

const (
	DataNone DataDirection = iota
	DataHostToCtrlr
	DataCtrlrToHost
)

// StatusCodeType mirrors the NVMe completion SCT field's coarse classes.
type StatusCodeType uint8

const (
	SCTGeneric StatusCodeType = 0x0
)

// Status codes this transport synthesizes itself (as opposed to ones
// carried verbatim from a target's CQE).
const (
	SCAbortedSQDeletion              = 0x08
	SCInternalDeviceError            = 0x06
	SCCommandTransientTransportError = 0x22
)

// Command is the minimal NVMe submission-queue-entry shape the
// transport needs to frame a CAPSULE_CMD: a full admin/IO command set is
// a non-goal, so fields beyond CID/opcode/NSID/CDW10-15 are carried as
// an opaque 64-byte SQE body the caller has already populated.
type Command struct {
	Opcode Opcode
	CID    uint16
	NSID   uint32
	CDW10  uint32
	CDW11  uint32
	CDW12  uint32
	CDW13  uint32
	CDW14  uint32
	CDW15  uint32
}

// EncodeSQE renders cmd into the 64-byte SQE body CapsuleCmdHdr carries.
func EncodeSQE(cmd Command) [64]byte {
	var sqe [64]byte
	sqe[0] = byte(cmd.Opcode)
	binary.LittleEndian.PutUint16(sqe[2:4], cmd.CID)
	binary.LittleEndian.PutUint32(sqe[4:8], cmd.NSID)
	binary.LittleEndian.PutUint32(sqe[40:44], cmd.CDW10)
	binary.LittleEndian.PutUint32(sqe[44:48], cmd.CDW11)
	binary.LittleEndian.PutUint32(sqe[48:52], cmd.CDW12)
	binary.LittleEndian.PutUint32(sqe[52:56], cmd.CDW13)
	binary.LittleEndian.PutUint32(sqe[56:60], cmd.CDW14)
	binary.LittleEndian.PutUint32(sqe[60:64], cmd.CDW15)
	return sqe
}

// DecodeSQE parses the fields EncodeSQE writes back out of a raw SQE.
func DecodeSQE(sqe [64]byte) Command {
	return Command{
		Opcode: Opcode(sqe[0]),
		CID:    binary.LittleEndian.Uint16(sqe[2:4]),
		NSID:   binary.LittleEndian.Uint32(sqe[4:8]),
		CDW10:  binary.LittleEndian.Uint32(sqe[40:44]),
		CDW11:  binary.LittleEndian.Uint32(sqe[44:48]),
		CDW12:  binary.LittleEndian.Uint32(sqe[48:52]),
		CDW13:  binary.LittleEndian.Uint32(sqe[52:56]),
		CDW14:  binary.LittleEndian.Uint32(sqe[56:60]),
		CDW15:  binary.LittleEndian.Uint32(sqe[60:64]),
	}
}

// Completion is the minimal NVMe completion-queue-entry shape: CDW0,
// CID and status, decoded out of a 16-byte CQE.
type Completion struct {
	CDW0 uint32
	CID  uint16
	SCT  StatusCodeType
	SC   uint8
}

// EncodeCQE renders a Completion into the 16-byte CQE CapsuleRespHdr
// carries. The status word packs SC into bits [1:8] and SCT into bits
// [9:11], matching the NVMe completion status field layout (phase tag,
// CRD and the M/DNR bits are not modeled — this transport never relies
// on them).
func EncodeCQE(c Completion) [16]byte {
	var cqe [16]byte
	binary.LittleEndian.PutUint32(cqe[0:4], c.CDW0)
	binary.LittleEndian.PutUint16(cqe[12:14], c.CID)
	status := uint16(c.SC)<<1 | uint16(c.SCT)<<9
	binary.LittleEndian.PutUint16(cqe[14:16], status)
	return cqe
}

// DecodeCQE parses the fields EncodeCQE writes back out of a raw CQE.
func DecodeCQE(cqe [16]byte) Completion {
	status := binary.LittleEndian.Uint16(cqe[14:16])
	return Completion{
		CDW0: binary.LittleEndian.Uint32(cqe[0:4]),
		CID:  binary.LittleEndian.Uint16(cqe[12:14]),
		SCT:  StatusCodeType(status>>9) & 0x7,
		SC:   uint8(status >> 1),
	}
}
