package qpair

// Stats are the per-qpair counters exposed to callers polling qpair
// health, mirroring struct nvme_tcp_qpair's stats member.
type Stats struct {
	SubmittedRequests  uint64
	QueuedRequests     uint64
	OutstandingReqs    uint64
	SendDdgsts         uint64
	RecvDdgsts         uint64
	ReceivedDataPdus   uint64
	ReceivedDataIovs   uint64
	MaxDataIovsPerPdu  uint64
}
