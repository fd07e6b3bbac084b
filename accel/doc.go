// Package accel defines the accelerator-sequence contract qpair uses to
// fuse copy/CRC/encrypt/decrypt operations into a single offloadable
// chain, plus a software one-shot task executor that runs sequences
// when no hardware accelerator is attached. The accelerator engines
// themselves (DPU/GPU/crypto-offload backends) are out of scope; this
// package only specifies the sequence-builder surface and a reference
// in-process backend.
package accel
