package protocol

// ConnPhase captures just enough qpair lifecycle state for common-header
// validation: whether IC_RESP is still legal (Invalid) or whether the
// fabric-connect/data PDUs are (Negotiated). The qpair package's richer
// state machine maps onto this coarser phase.
type ConnPhase int

const (
	PhaseInvalid ConnPhase = iota
	PhaseNegotiated
)

// TermError describes a fatal header-validation failure that must be
// reported via H2C_TERM_REQ / C2H_TERM_REQ with the given fes and the
// byte offset of the offending common-header field.
type TermError struct {
	Fes         TermReqFes
	ErrorOffset uint32
}

func (e *TermError) Error() string { return e.Fes.String() }

// Common-header field byte offsets, for error_offset reporting.
const (
	OffsetPduType = 0
	OffsetHLen    = 2
	OffsetPlen    = 4
)

// ValidateCommonHeader checks a freshly decoded common header against the
// current connection phase and returns the expected per-type header
// length, or a *TermError describing why the PDU must be rejected.
func ValidateCommonHeader(ch CommonHeader, phase ConnPhase) (expectedHLen uint32, err *TermError) {
	if ch.PduType == PduTypeICResp {
		if phase != PhaseInvalid {
			return 0, &TermError{Fes: FesPduSequenceError}
		}
		if ch.PLen != ICRespLen {
			return 0, &TermError{Fes: FesInvalidPduHeaderField, ErrorOffset: OffsetPlen}
		}
		return ICRespLen, nil
	}

	if phase != PhaseNegotiated {
		return 0, &TermError{Fes: FesPduSequenceError}
	}

	var hdLen uint32
	if ch.HDGSTF() {
		hdLen = DigestLen
	}

	var expected uint32
	plenError := false
	switch ch.PduType {
	case PduTypeCapsuleResp:
		expected = CommonHeaderLen + CQERespLen
		if ch.PLen != expected+hdLen {
			plenError = true
		}
	case PduTypeC2HData:
		expected = C2HDataHdrLen
		if ch.PLen < uint32(ch.Pdo) {
			plenError = true
		}
	case PduTypeC2HTermReq:
		expected = TermReqHdrLen
		if ch.PLen <= expected || ch.PLen > TermReqMaxSize {
			plenError = true
		}
	case PduTypeR2T:
		expected = R2THdrLen
		if ch.PLen != expected+hdLen {
			plenError = true
		}
	default:
		return 0, &TermError{Fes: FesInvalidPduHeaderField, ErrorOffset: OffsetPduType}
	}

	if uint32(ch.HLen) != expected {
		return 0, &TermError{Fes: FesInvalidPduHeaderField, ErrorOffset: OffsetHLen}
	}
	if plenError {
		return 0, &TermError{Fes: FesInvalidPduHeaderField, ErrorOffset: OffsetPlen}
	}
	return expected, nil
}

// DataAreaRange returns the [start, end) byte range of the data area
// within a PDU of the given plen/pdo, excluding any trailing data digest.
func DataAreaRange(plen, pdo uint32, ddgstf bool) (start, end uint32) {
	start = pdo
	end = plen
	if ddgstf {
		end -= DigestLen
	}
	return start, end
}

// PdoAlign computes the padded offset where the data area must start,
// given the header+digest bytes already emitted and the negotiated PDA
// (cpda is zero-based: alignment unit is (cpda+1)*4 bytes).
func PdoAlign(plenBeforeData uint32, cpda uint8) uint32 {
	unit := uint32(cpda+1) << 2
	rem := plenBeforeData % unit
	if rem == 0 {
		return plenBeforeData
	}
	return plenBeforeData + (unit - rem)
}
