package accel

// OpType identifies one fused operation within a Sequence.
type OpType int

const (
	// OpCopy copies Src into Dst.
	OpCopy OpType = iota
	// OpCRC32C computes the CRC32C of Src (or, if Srcs is non-empty, the
	// concatenation of Srcs) and writes it to *CRCOut.
	OpCRC32C
	// OpEncrypt and OpDecrypt run through the Executor's Cipher backend;
	// an Executor built without a Cipher fails them with
	// api.ErrNotSupported.
	OpEncrypt
	OpDecrypt
	// OpFunc runs an arbitrary closure, letting non-accelerator work
	// (e.g. a qpair completion callback) share the same task pipeline.
	OpFunc
)

// Op is one step of a Sequence.
type Op struct {
	Type OpType

	Dst  []byte
	Src  []byte
	Srcs [][]byte // used by OpCRC32C when the digest spans several segments

	CRCOut *uint32

	// Key and IV are reserved for OpEncrypt/OpDecrypt.
	Key []byte
	IV  []byte

	// Fn is the closure run by OpFunc.
	Fn func()
}

// CompletionFunc is invoked exactly once when a Sequence finishes,
// successfully or not.
type CompletionFunc func(err error)

// Sequence is a programmable chain of copy/CRC/crypto operations built
// once and submitted to an Executor as a single unit. qpair submits a
// one-step CRC32C sequence to compute data digests on both the send and
// receive paths; it does not build staging-buffer copies with it.
type Sequence struct {
	ops []Op
	on  CompletionFunc
}

// NewSequence creates an empty sequence.
func NewSequence() *Sequence {
	return &Sequence{}
}

// AppendCopy appends a copy step.
func (s *Sequence) AppendCopy(dst, src []byte) *Sequence {
	s.ops = append(s.ops, Op{Type: OpCopy, Dst: dst, Src: src})
	return s
}

// AppendCRC32C appends a digest step over a single buffer.
func (s *Sequence) AppendCRC32C(src []byte, out *uint32) *Sequence {
	s.ops = append(s.ops, Op{Type: OpCRC32C, Src: src, CRCOut: out})
	return s
}

// AppendCRC32CMulti appends a digest step spanning several segments,
// used by qpair for a data digest over a payload's buffers plus padding.
func (s *Sequence) AppendCRC32CMulti(srcs [][]byte, out *uint32) *Sequence {
	s.ops = append(s.ops, Op{Type: OpCRC32C, Srcs: srcs, CRCOut: out})
	return s
}

// AppendEncrypt and AppendDecrypt append crypto steps. They execute
// only if the Executor was constructed with a Cipher backend.
func (s *Sequence) AppendEncrypt(dst, src, key, iv []byte) *Sequence {
	s.ops = append(s.ops, Op{Type: OpEncrypt, Dst: dst, Src: src, Key: key, IV: iv})
	return s
}

func (s *Sequence) AppendDecrypt(dst, src, key, iv []byte) *Sequence {
	s.ops = append(s.ops, Op{Type: OpDecrypt, Dst: dst, Src: src, Key: key, IV: iv})
	return s
}

// AppendFunc appends an arbitrary closure step.
func (s *Sequence) AppendFunc(fn func()) *Sequence {
	s.ops = append(s.ops, Op{Type: OpFunc, Fn: fn})
	return s
}

// OnComplete registers the sequence's completion continuation.
func (s *Sequence) OnComplete(fn CompletionFunc) *Sequence {
	s.on = fn
	return s
}

// Len reports the number of queued operations.
func (s *Sequence) Len() int { return len(s.ops) }
