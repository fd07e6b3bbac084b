package accel

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/kvaster/nvmetcp/api"
	"github.com/kvaster/nvmetcp/core/protocol"
)

// Cipher is the pluggable crypto backend Executor defers OpEncrypt/
// OpDecrypt steps to. No default implementation ships here: a real
// cipher suite is a property of the attached accelerator engine, which
// this package explicitly does not provide.
type Cipher interface {
	Encrypt(dst, src, key, iv []byte) error
	Decrypt(dst, src, key, iv []byte) error
}

// Executor is a one-shot task pipeline for accelerator Sequences: each
// Sequence is queued once and run to completion by a worker goroutine,
// which then fires its CompletionFunc exactly once. It is the software
// reference backend for the accelerator-sequence contract — grounded on
// the teacher's internal/concurrency.Executor worker-pool shape, over
// the same github.com/eapache/queue task queue, but with a condition
// variable replacing that executor's busy-poll dequeue loop since
// queue.Queue is not safe for lock-free concurrent access.
type Executor struct {
	cipher     Cipher
	numWorkers int

	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor starts numWorkers goroutines draining a shared sequence
// queue. cipher may be nil; sequences containing OpEncrypt/OpDecrypt
// then fail with api.ErrNotSupported.
func NewExecutor(numWorkers int, cipher Cipher) *Executor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	e := &Executor{cipher: cipher, q: queue.New(), numWorkers: numWorkers}
	e.cond = sync.NewCond(&e.mu)
	for i := 0; i < numWorkers; i++ {
		e.wg.Add(1)
		go e.runWorker()
	}
	return e
}

// NumWorkers reports the fixed worker-goroutine count.
func (e *Executor) NumWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.numWorkers
}

// Submit enqueues seq for execution. The sequence's completion callback
// fires from a worker goroutine, never from Submit itself.
func (e *Executor) Submit(seq *Sequence) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return api.ErrClosed
	}
	e.q.Add(seq)
	e.mu.Unlock()
	e.cond.Signal()
	return nil
}

// Close stops accepting new sequences and waits for in-flight and
// already-queued ones to finish.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cond.Broadcast()
	e.wg.Wait()
}

func (e *Executor) runWorker() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for e.q.Length() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.q.Length() == 0 {
			e.mu.Unlock()
			return
		}
		seq := e.q.Remove().(*Sequence)
		e.mu.Unlock()

		err := e.run(seq)
		if seq.on != nil {
			seq.on(err)
		}
	}
}

func (e *Executor) run(seq *Sequence) error {
	for _, op := range seq.ops {
		switch op.Type {
		case OpCopy:
			copy(op.Dst, op.Src)
		case OpCRC32C:
			if len(op.Srcs) > 0 {
				*op.CRCOut = protocol.CRC32CMulti(op.Srcs)
			} else {
				*op.CRCOut = protocol.CRC32C(op.Src)
			}
		case OpEncrypt:
			if e.cipher == nil {
				return api.ErrNotSupported
			}
			if err := e.cipher.Encrypt(op.Dst, op.Src, op.Key, op.IV); err != nil {
				return err
			}
		case OpDecrypt:
			if e.cipher == nil {
				return api.ErrNotSupported
			}
			if err := e.cipher.Decrypt(op.Dst, op.Src, op.Key, op.IV); err != nil {
				return err
			}
		case OpFunc:
			op.Fn()
		}
	}
	return nil
}
