// Package memdomain is the host-side memory registry: a protection-domain
// cache, per-(pd, access-flags) memory-region maps, and a memory-domain
// singleton keyed by (pd, type) with reference counting. It never talks
// to real RDMA verbs directly — callers supply the register/unregister
// hooks (backed by the NIC driver or a software stand-in) and this
// package owns only the caching, refcounting and translation bookkeeping
// SPDK's rdma_utils layer provides.
package memdomain
