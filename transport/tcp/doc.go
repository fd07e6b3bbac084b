// Package tcp implements api.Socket and api.Dialer over a non-blocking
// Linux TCP socket: vectored send (optionally MSG_ZEROCOPY), zero-copy
// send-completion ranges read off MSG_ERRQUEUE, and a buffer-pool-backed
// chunked receive path that hands out reference-counted packet chunks
// instead of copying into caller buffers.
package tcp
