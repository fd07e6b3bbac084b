package tcp

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kvaster/nvmetcp/api"
	"github.com/kvaster/nvmetcp/pool"
)

func socketPair(t *testing.T) (*Socket, *Socket) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("set nonblock: %v", err)
		}
	}
	p := pool.NewBufferPool()
	opts := api.DialOptions{}
	a := newSocket(fds[0], opts, p, -1)
	b := newSocket(fds[1], opts, p, -1)
	return a, b
}

func TestSocketSendRecvBytes(t *testing.T) {
	a, b := socketPair(t)
	defer a.Close(true)
	defer b.Close(true)

	payload := []byte("hello nvme/tcp")
	if _, err := a.SendAsync([]api.SendIov{{Data: payload}}); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	buf := make([]byte, len(payload))
	n, err := b.RecvBytes([][]byte{buf})
	if err != nil {
		t.Fatalf("RecvBytes: %v", err)
	}
	if n != len(payload) || string(buf) != string(payload) {
		t.Fatalf("got %q, want %q", buf[:n], payload)
	}
}

func TestSocketRecvChunksRoundTrip(t *testing.T) {
	a, b := socketPair(t)
	defer a.Close(true)
	defer b.Close(true)

	payload := []byte("chunked payload")
	if _, err := a.SendAsync([]api.SendIov{{Data: payload}}); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	chunks, err := b.RecvChunks(4096)
	if err != nil {
		t.Fatalf("RecvChunks: %v", err)
	}
	if len(chunks) != 1 || string(chunks[0].Data) != string(payload) {
		t.Fatalf("unexpected chunk content: %+v", chunks)
	}
	b.FreeChunks(chunks)
}

func TestSocketSendAsyncEmptyIsInvalidArgument(t *testing.T) {
	a, b := socketPair(t)
	defer a.Close(true)
	defer b.Close(true)

	if _, err := a.SendAsync(nil); err != api.ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSocketRecvBytesNoDataReturnsAgain(t *testing.T) {
	a, b := socketPair(t)
	defer a.Close(true)
	defer b.Close(true)

	buf := make([]byte, 16)
	if _, err := b.RecvBytes([][]byte{buf}); err != api.ErrAgain {
		t.Fatalf("expected ErrAgain on empty nonblocking socket, got %v", err)
	}
}

func TestSocketCloseBlocksOnOutstandingRefsUnlessForced(t *testing.T) {
	a, b := socketPair(t)
	defer a.Close(true)

	payload := []byte("pending ref")
	if _, err := a.SendAsync([]api.SendIov{{Data: payload}}); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}
	chunks, err := b.RecvChunks(4096)
	if err != nil {
		t.Fatalf("RecvChunks: %v", err)
	}

	if err := b.Close(false); err != api.ErrAgain {
		t.Fatalf("expected ErrAgain while a chunk ref is outstanding, got %v", err)
	}

	b.FreeChunks(chunks)
	if err := b.Close(false); err != nil {
		t.Fatalf("Close after releasing refs: %v", err)
	}
}

func TestNextSendIdxWrapsPastMaxUint32(t *testing.T) {
	var s Socket
	s.sendIdx.Store(^uint32(0))
	if got := s.nextSendIdx(); got != 1 {
		t.Fatalf("expected wrap to 1, got %d", got)
	}
}
