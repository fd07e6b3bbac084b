// Package pool implements the NUMA-aware buffer pool, CID bit-pool
// allocator and the growable id->pointer lookup table used by the qpair
// and controller layers. All pools are safe for concurrent use. LUT
// Insert/Get/Remove are O(1) amortized; CID allocation scans the CID
// bitmap one 64-bit word at a time.
package pool
