package accel

import (
	"sync"
	"testing"

	"github.com/kvaster/nvmetcp/api"
	"github.com/kvaster/nvmetcp/core/protocol"
)

func TestExecutorRunsCopyAndCRC(t *testing.T) {
	e := NewExecutor(2, nil)
	defer e.Close()

	src := []byte("nvme over tcp")
	dst := make([]byte, len(src))
	var crc uint32

	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	seq := NewSequence().
		AppendCopy(dst, src).
		AppendCRC32C(src, &crc).
		OnComplete(func(err error) {
			gotErr = err
			wg.Done()
		})

	if err := e.Submit(seq); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	wg.Wait()

	if gotErr != nil {
		t.Fatalf("sequence failed: %v", gotErr)
	}
	if string(dst) != string(src) {
		t.Fatalf("copy mismatch: got %q want %q", dst, src)
	}
	if want := protocol.CRC32C(src); crc != want {
		t.Fatalf("crc mismatch: got %#x want %#x", crc, want)
	}
}

func TestExecutorEncryptWithoutCipherIsNotSupported(t *testing.T) {
	e := NewExecutor(1, nil)
	defer e.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	seq := NewSequence().
		AppendEncrypt(make([]byte, 4), make([]byte, 4), nil, nil).
		OnComplete(func(err error) {
			gotErr = err
			wg.Done()
		})

	if err := e.Submit(seq); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	wg.Wait()

	if gotErr != api.ErrNotSupported {
		t.Fatalf("expected ErrNotSupported, got %v", gotErr)
	}
}

func TestExecutorSubmitAfterCloseFails(t *testing.T) {
	e := NewExecutor(1, nil)
	e.Close()

	if err := e.Submit(NewSequence()); err != api.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

type xorCipher struct{ key byte }

func (c xorCipher) Encrypt(dst, src, key, iv []byte) error {
	for i := range src {
		dst[i] = src[i] ^ c.key
	}
	return nil
}

func (c xorCipher) Decrypt(dst, src, key, iv []byte) error {
	return c.Encrypt(dst, src, key, iv)
}

func TestExecutorWithCipherRoundTrips(t *testing.T) {
	e := NewExecutor(1, xorCipher{key: 0x5a})
	defer e.Close()

	plain := []byte("staging buffer")
	cipherBuf := make([]byte, len(plain))
	roundTrip := make([]byte, len(plain))

	var wg sync.WaitGroup
	wg.Add(1)
	seq := NewSequence().
		AppendEncrypt(cipherBuf, plain, nil, nil).
		AppendDecrypt(roundTrip, cipherBuf, nil, nil).
		OnComplete(func(err error) {
			if err != nil {
				t.Errorf("sequence failed: %v", err)
			}
			wg.Done()
		})
	if err := e.Submit(seq); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	wg.Wait()

	if string(roundTrip) != string(plain) {
		t.Fatalf("round trip mismatch: got %q want %q", roundTrip, plain)
	}
}
