// Package protocol is a pure, allocation-conscious codec for the NVMe/TCP
// PDU family. It never touches a socket: callers own framing (how many
// bytes to read before the next Decode call) and digest verification.
package protocol
