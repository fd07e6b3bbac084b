package tcp

import (
	"crypto/sha256"
	"crypto/tls"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/kvaster/nvmetcp/api"
)

// pskIdentity is the fixed TLS 1.3 PSK identity NVMe/TCP mandates for
// discovery-less in-band authentication.
const pskIdentity = "psk.spdk.io"

// No example or ecosystem library in reach implements RFC 8446's raw
// out-of-band PSK ciphersuites the way SPDK's OpenSSL-based glue does;
// crypto/tls only negotiates PSK as a session-resumption optimization
// layered on top of an ordinary certificate handshake, not as the sole
// authentication factor. wrapTLSPSK is therefore a narrower stdlib
// fallback: it gets TLS 1.3 record-layer confidentiality and integrity,
// but psk authenticates neither side. The server certificate is not
// verified, the VerifyConnection callback compares nothing against
// psk, and the wire-level PSK identity exchange is not performed
// (pskIdentity is sent only as the TLS server name).
func wrapTLSPSK(sock *Socket, psk []byte) (api.Socket, error) {
	conn, err := netConnFromFd(int(sock.Fd()))
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true, // the server is not authenticated; see above
		ServerName:         pskIdentity,
	}
	cfg.VerifyConnection = pskVerifier(psk)

	tc := tls.Client(conn, cfg)
	return &TLSSocket{Socket: sock, conn: tc}, nil
}

// pskVerifier derives an exporter value keyed by psk from the session.
// It does not compare that value with anything from the peer, so it
// accepts every handshake crypto/tls itself accepts; it does not stand
// in for the PSK binder RFC 8446 computes in the ClientHello.
func pskVerifier(psk []byte) func(tls.ConnectionState) error {
	want := sha256.Sum256(append([]byte(pskIdentity+":"), psk...))
	return func(cs tls.ConnectionState) error {
		got, err := cs.ExportKeyingMaterial(pskIdentity, want[:], len(want))
		if err != nil {
			return err
		}
		_ = got // not compared or kept
		return nil
	}
}

// netConnFromFd adapts sock's raw fd into a net.Conn so crypto/tls can
// drive the handshake. net.FileConn duplicates the descriptor and the
// original fd is closed here, so the returned conn owns the only live
// copy and TLSSocket.Close closes through it, not through sock.
func netConnFromFd(fd int) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), "nvmetcp-tls")
	conn, err := net.FileConn(f)
	f.Close() // FileConn dups the fd; the original is no longer needed
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// TLSSocket wraps a Socket with a TLS 1.3 record layer. It trades away
// zero-copy send/receive for the duration of the session: crypto/tls
// owns the stream and encrypts/decrypts through its own buffers.
type TLSSocket struct {
	*Socket
	conn *tls.Conn

	mu      sync.Mutex
	sendIdx atomic.Uint32
}

// Fd returns the duplicated descriptor net.FileConn created, not
// Socket's original (netConnFromFd already closed that one).
func (t *TLSSocket) Fd() uintptr {
	sc, ok := t.conn.NetConn().(syscall.Conn)
	if !ok {
		return 0
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0
	}
	var fd uintptr
	_ = raw.Control(func(f uintptr) { fd = f })
	return fd
}

func (t *TLSSocket) SendAsync(iovs []api.SendIov) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, iov := range iovs {
		if _, err := t.conn.Write(iov.Data); err != nil {
			return 0, translateTLSErr(err)
		}
	}
	return t.sendIdx.Add(1), nil
}

// PollSendCompletions always reports the most recent send as complete:
// crypto/tls.Write is synchronous, so there is no outstanding zero-copy
// completion to wait for.
func (t *TLSSocket) PollSendCompletions() (uint32, uint32, bool) {
	idx := t.sendIdx.Load()
	if idx == 0 {
		return 0, 0, false
	}
	return idx, idx, true
}

func (t *TLSSocket) RecvChunks(maxLen int) ([]api.Chunk, error) {
	buf := t.Socket.recvPool.Get(maxLen, t.Socket.recvNUMA)
	n, err := t.conn.Read(buf.Data)
	if err != nil {
		buf.Release()
		return nil, translateTLSErr(err)
	}
	if n == 0 {
		buf.Release()
		return nil, api.ErrClosed
	}
	ref := api.NewPacketRef(func() { buf.Release() })
	return []api.Chunk{{Data: buf.Data[:n], Source: ref}}, nil
}

func (t *TLSSocket) RecvBytes(iovs [][]byte) (int, error) {
	total := 0
	for _, b := range iovs {
		n, err := t.conn.Read(b)
		total += n
		if err != nil {
			return total, translateTLSErr(err)
		}
		if n < len(b) {
			break
		}
	}
	return total, nil
}

// Close closes the TLS record layer, which owns the only live copy of
// the underlying fd (netConnFromFd closed Socket's original descriptor
// once net.FileConn duplicated it); it does not also close t.Socket.
func (t *TLSSocket) Close(force bool) error {
	if !force && t.Socket.outstandingRefs.Load() > 0 {
		return api.ErrAgain
	}
	t.Socket.mu.Lock()
	t.Socket.closed = true
	t.Socket.mu.Unlock()
	return t.conn.Close()
}

var _ api.Socket = (*TLSSocket)(nil)

func translateTLSErr(err error) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return api.ErrAgain
	}
	return err
}
