// Package qpair implements the per-connection NVMe/TCP queue-pair
// engine: request pool and CID allocator, outstanding-request table,
// send queue, receive state machine, R2T flow control, digest
// computation, accelerator-sequence integration and the connect/
// disconnect lifecycle. It is the core of the host-side transport;
// everything else in this module (memdomain, transport/tcp, reactor,
// accel, core/protocol) exists to serve this package.
package qpair
