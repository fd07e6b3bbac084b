package protocol

import "encoding/binary"

// CommonHeader is the 8-byte header present on every PDU.
type CommonHeader struct {
	PduType uint8
	Flags   uint8
	HLen    uint8
	Pdo     uint8
	PLen    uint32
}

func (h CommonHeader) HDGSTF() bool { return h.Flags&FlagHDGSTF != 0 }
func (h CommonHeader) DDGSTF() bool { return h.Flags&FlagDDGSTF != 0 }

// EncodeCommonHeader writes the 8-byte header into dst[0:8].
func EncodeCommonHeader(dst []byte, h CommonHeader) {
	dst[0] = h.PduType
	dst[1] = h.Flags
	dst[2] = h.HLen
	dst[3] = h.Pdo
	binary.LittleEndian.PutUint32(dst[4:8], h.PLen)
}

// DecodeCommonHeader parses the first 8 bytes of src.
func DecodeCommonHeader(src []byte) CommonHeader {
	return CommonHeader{
		PduType: src[0],
		Flags:   src[1],
		HLen:    src[2],
		Pdo:     src[3],
		PLen:    binary.LittleEndian.Uint32(src[4:8]),
	}
}

// ICReq is the initial connection request PDU (host -> target).
type ICReq struct {
	Common CommonHeader
	Pfv    uint16
	Hpda   uint8
	HDGST  bool
	DDGST  bool
	MaxR2T uint32
}

// EncodeICReq serializes an ICReq into a 128-byte buffer.
func EncodeICReq(req ICReq) []byte {
	buf := make([]byte, ICReqLen)
	req.Common.PduType = PduTypeICReq
	req.Common.HLen = ICReqLen
	req.Common.PLen = ICReqLen
	EncodeCommonHeader(buf, req.Common)
	binary.LittleEndian.PutUint16(buf[8:10], req.Pfv)
	buf[10] = req.Hpda
	var digest uint8
	if req.HDGST {
		digest |= 0x01
	}
	if req.DDGST {
		digest |= 0x02
	}
	buf[11] = digest
	binary.LittleEndian.PutUint32(buf[12:16], req.MaxR2T)
	return buf
}

// DecodeICReq parses a 128-byte ICReq buffer.
func DecodeICReq(buf []byte) ICReq {
	return ICReq{
		Common: DecodeCommonHeader(buf),
		Pfv:    binary.LittleEndian.Uint16(buf[8:10]),
		Hpda:   buf[10],
		HDGST:  buf[11]&0x01 != 0,
		DDGST:  buf[11]&0x02 != 0,
		MaxR2T: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// ICResp is the target's reply negotiating digests, PDA and max H2C size.
type ICResp struct {
	Common     CommonHeader
	Pfv        uint16
	Cpda       uint8
	HDGST      bool
	DDGST      bool
	MaxH2CData uint32
}

// EncodeICResp serializes an ICResp into a 128-byte buffer.
func EncodeICResp(resp ICResp) []byte {
	buf := make([]byte, ICRespLen)
	resp.Common.PduType = PduTypeICResp
	resp.Common.HLen = ICRespLen
	resp.Common.PLen = ICRespLen
	EncodeCommonHeader(buf, resp.Common)
	binary.LittleEndian.PutUint16(buf[8:10], resp.Pfv)
	buf[10] = resp.Cpda
	var digest uint8
	if resp.HDGST {
		digest |= 0x01
	}
	if resp.DDGST {
		digest |= 0x02
	}
	buf[11] = digest
	binary.LittleEndian.PutUint32(buf[12:16], resp.MaxH2CData)
	return buf
}

// DecodeICResp parses a 128-byte ICResp buffer.
func DecodeICResp(buf []byte) ICResp {
	return ICResp{
		Common:     DecodeCommonHeader(buf),
		Pfv:        binary.LittleEndian.Uint16(buf[8:10]),
		Cpda:       buf[10],
		HDGST:      buf[11]&0x01 != 0,
		DDGST:      buf[11]&0x02 != 0,
		MaxH2CData: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// CapsuleCmdHdr carries a 64-byte NVMe SQE. In-capsule data, if any,
// follows starting at Common.Pdo.
type CapsuleCmdHdr struct {
	Common CommonHeader
	SQE    [SQECmdLen]byte
}

// EncodeCapsuleCmdHdr writes the common header + SQE into dst[0:72].
func EncodeCapsuleCmdHdr(dst []byte, h CapsuleCmdHdr) {
	h.Common.PduType = PduTypeCapsuleCmd
	EncodeCommonHeader(dst, h.Common)
	copy(dst[CommonHeaderLen:CommonHeaderLen+SQECmdLen], h.SQE[:])
}

// DecodeCapsuleCmdHdr parses the common header + SQE from src.
func DecodeCapsuleCmdHdr(src []byte) CapsuleCmdHdr {
	var h CapsuleCmdHdr
	h.Common = DecodeCommonHeader(src)
	copy(h.SQE[:], src[CommonHeaderLen:CommonHeaderLen+SQECmdLen])
	return h
}

// CapsuleRespHdr carries a 16-byte NVMe CQE.
type CapsuleRespHdr struct {
	Common CommonHeader
	CQE    [CQERespLen]byte
}

func EncodeCapsuleRespHdr(dst []byte, h CapsuleRespHdr) {
	h.Common.PduType = PduTypeCapsuleResp
	h.Common.HLen = CommonHeaderLen + CQERespLen
	EncodeCommonHeader(dst, h.Common)
	copy(dst[CommonHeaderLen:CommonHeaderLen+CQERespLen], h.CQE[:])
}

func DecodeCapsuleRespHdr(src []byte) CapsuleRespHdr {
	var h CapsuleRespHdr
	h.Common = DecodeCommonHeader(src)
	copy(h.CQE[:], src[CommonHeaderLen:CommonHeaderLen+CQERespLen])
	return h
}

// C2HDataHdr is the controller-to-host data PDU header.
type C2HDataHdr struct {
	Common CommonHeader
	CCCID  uint16
	Datao  uint32
	Datal  uint32
}

func EncodeC2HDataHdr(dst []byte, h C2HDataHdr) {
	h.Common.PduType = PduTypeC2HData
	h.Common.HLen = C2HDataHdrLen
	EncodeCommonHeader(dst, h.Common)
	binary.LittleEndian.PutUint16(dst[8:10], h.CCCID)
	binary.LittleEndian.PutUint32(dst[12:16], h.Datao)
	binary.LittleEndian.PutUint32(dst[16:20], h.Datal)
}

func DecodeC2HDataHdr(src []byte) C2HDataHdr {
	return C2HDataHdr{
		Common: DecodeCommonHeader(src),
		CCCID:  binary.LittleEndian.Uint16(src[8:10]),
		Datao:  binary.LittleEndian.Uint32(src[12:16]),
		Datal:  binary.LittleEndian.Uint32(src[16:20]),
	}
}

// H2CDataHdr is the host-to-controller data PDU header.
type H2CDataHdr struct {
	Common CommonHeader
	CCCID  uint16
	TTag   uint16
	Datao  uint32
	Datal  uint32
}

func EncodeH2CDataHdr(dst []byte, h H2CDataHdr) {
	h.Common.PduType = PduTypeH2CData
	h.Common.HLen = H2CDataHdrLen
	EncodeCommonHeader(dst, h.Common)
	binary.LittleEndian.PutUint16(dst[8:10], h.CCCID)
	binary.LittleEndian.PutUint16(dst[10:12], h.TTag)
	binary.LittleEndian.PutUint32(dst[12:16], h.Datao)
	binary.LittleEndian.PutUint32(dst[16:20], h.Datal)
}

func DecodeH2CDataHdr(src []byte) H2CDataHdr {
	return H2CDataHdr{
		Common: DecodeCommonHeader(src),
		CCCID:  binary.LittleEndian.Uint16(src[8:10]),
		TTag:   binary.LittleEndian.Uint16(src[10:12]),
		Datao:  binary.LittleEndian.Uint32(src[12:16]),
		Datal:  binary.LittleEndian.Uint32(src[16:20]),
	}
}

// R2THdr requests a host-to-controller data range.
type R2THdr struct {
	Common CommonHeader
	CCCID  uint16
	TTag   uint16
	R2TO   uint32
	R2TL   uint32
}

func EncodeR2THdr(dst []byte, h R2THdr) {
	h.Common.PduType = PduTypeR2T
	h.Common.HLen = R2THdrLen
	EncodeCommonHeader(dst, h.Common)
	binary.LittleEndian.PutUint16(dst[8:10], h.CCCID)
	binary.LittleEndian.PutUint16(dst[10:12], h.TTag)
	binary.LittleEndian.PutUint32(dst[12:16], h.R2TO)
	binary.LittleEndian.PutUint32(dst[16:20], h.R2TL)
}

func DecodeR2THdr(src []byte) R2THdr {
	return R2THdr{
		Common: DecodeCommonHeader(src),
		CCCID:  binary.LittleEndian.Uint16(src[8:10]),
		TTag:   binary.LittleEndian.Uint16(src[10:12]),
		R2TO:   binary.LittleEndian.Uint32(src[12:16]),
		R2TL:   binary.LittleEndian.Uint32(src[16:20]),
	}
}

// TermReqHdr is the termination-request header common to both directions
// (H2C_TERM_REQ and C2H_TERM_REQ); up to 152 bytes of diagnostic data
// from the offending PDU follow the header.
type TermReqHdr struct {
	Common    CommonHeader
	Fes       TermReqFes
	Fei       [4]byte
	ErrorData []byte
}

func EncodeTermReqHdr(pduType uint8, h TermReqHdr) []byte {
	n := len(h.ErrorData)
	if n > 152 {
		n = 152
	}
	buf := make([]byte, TermReqHdrLen+n)
	h.Common.PduType = pduType
	h.Common.HLen = TermReqHdrLen
	h.Common.PLen = uint32(TermReqHdrLen + n)
	EncodeCommonHeader(buf, h.Common)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(h.Fes))
	copy(buf[10:14], h.Fei[:])
	copy(buf[TermReqHdrLen:], h.ErrorData[:n])
	return buf
}

func DecodeTermReqHdr(src []byte) TermReqHdr {
	h := TermReqHdr{Common: DecodeCommonHeader(src)}
	h.Fes = TermReqFes(binary.LittleEndian.Uint16(src[8:10]))
	copy(h.Fei[:], src[10:14])
	if len(src) > TermReqHdrLen {
		h.ErrorData = append([]byte(nil), src[TermReqHdrLen:]...)
	}
	return h
}
