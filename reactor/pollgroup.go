package reactor

import (
	"sync"

	"github.com/kvaster/nvmetcp/api"
)

// MaxEventsPerPollGroup equals MaxEventsPerPoll. PollGroup.Poll does not
// read it: the maxEvents argument alone bounds how many pending-recv
// members one Poll call handles.
const MaxEventsPerPollGroup = 256

// Member is the poll-group-facing view of a qpair: enough to drive its
// send/recv progress without the poll group knowing qpair internals.
type Member interface {
	// Socket is the member's underlying zero-copy socket.
	Socket() api.Socket
	// FlushSend pushes queued sends into the socket and reclaims
	// zero-copy completion notifications. empty reports whether the
	// send queue is now drained (member can leave pending_send).
	FlushSend() (empty bool, err error)
	// HandleReadable drains available receive data and advances the
	// member's recv state machine.
	HandleReadable() error
	// NeedsPoll reports whether this member must be polled every
	// iteration regardless of socket readiness (INITIALIZING,
	// FABRIC_CONNECT_POLL, or queued requests waiting on resources).
	NeedsPoll() bool
	// Disconnect aborts the member's outstanding requests and tears down
	// its socket, called when the poll group gives up on a member (e.g.
	// a send flush that fails).
	Disconnect() error
}

type memberState struct {
	member      Member
	fd          uintptr
	pendingRecv bool
	pendingSend bool
}

// PollGroup multiplexes many qpair sockets over one Reactor, tracking
// the pending_recv/pending_send/needs_poll auxiliary lists the spec
// requires for fairness: a socket with buffered data that arrived
// between two Poll calls must not starve sockets still waiting on
// readiness.
type PollGroup struct {
	reactor api.Reactor

	mu          sync.Mutex
	members     map[uintptr]*memberState
	pendingRecv []uintptr
	pendingSend []uintptr
	needsPoll   []uintptr

	stats Stats
}

// Stats summarizes cumulative poll-group activity for diagnostics.
type Stats struct {
	SendFlushes  int64
	RecvHandled  int64
	AbortedSends int64
}

// NewPollGroup creates a poll group bound to reactor. A poll group is
// meant to be driven from a single thread, matching the spec's
// "poll groups are bound to a thread" scheduling model.
func NewPollGroup(reactor api.Reactor) *PollGroup {
	return &PollGroup{reactor: reactor, members: make(map[uintptr]*memberState)}
}

// AddSock registers member's socket with the reactor and adds it to the
// group's ring set.
func (g *PollGroup) AddSock(member Member) error {
	sock := member.Socket()
	fd := sock.Fd()
	st := &memberState{member: member, fd: fd}

	g.mu.Lock()
	g.members[fd] = st
	g.mu.Unlock()

	return g.reactor.Register(fd, api.EventRead|api.EventWrite, func(fd uintptr, ev api.FDEvent) {
		g.onReady(fd, ev)
	})
}

// RemoveSock unregisters member's socket from the reactor and drops it
// from all three auxiliary lists.
func (g *PollGroup) RemoveSock(member Member) error {
	fd := member.Socket().Fd()
	g.mu.Lock()
	delete(g.members, fd)
	g.pendingRecv = removeFd(g.pendingRecv, fd)
	g.pendingSend = removeFd(g.pendingSend, fd)
	g.needsPoll = removeFd(g.needsPoll, fd)
	g.mu.Unlock()
	return g.reactor.Unregister(fd)
}

// MarkNeedsPoll adds member to the needs_poll list (idempotent). Callers
// typically do this on submit-returned-AGAIN or on entering
// FABRIC_CONNECT_POLL/INITIALIZING.
func (g *PollGroup) MarkNeedsPoll(member Member) {
	fd := member.Socket().Fd()
	g.mu.Lock()
	if !containsFd(g.needsPoll, fd) {
		g.needsPoll = append(g.needsPoll, fd)
	}
	g.mu.Unlock()
}

// ClearNeedsPoll removes member from the needs_poll list once it no
// longer requires unconditional polling.
func (g *PollGroup) ClearNeedsPoll(member Member) {
	fd := member.Socket().Fd()
	g.mu.Lock()
	g.needsPoll = removeFd(g.needsPoll, fd)
	g.mu.Unlock()
}

func (g *PollGroup) onReady(fd uintptr, ev api.FDEvent) {
	g.mu.Lock()
	st, ok := g.members[fd]
	if !ok {
		g.mu.Unlock()
		return
	}
	if ev&api.EventRead != 0 && !st.pendingRecv {
		st.pendingRecv = true
		g.pendingRecv = append(g.pendingRecv, fd)
	}
	if ev&(api.EventWrite|api.EventError) != 0 && !st.pendingSend {
		st.pendingSend = true
		g.pendingSend = append(g.pendingSend, fd)
	}
	g.mu.Unlock()
}

// Poll drains pending_send, services needs_poll members, lets the
// reactor dispatch fresh readiness, and finally returns up to maxEvents
// members with pending receive data, rotating them off the
// pending_recv list so later callers see the next batch.
func (g *PollGroup) Poll(maxEvents int, timeoutMs int) ([]Member, error) {
	g.drainPendingSend()
	g.pollNeedsPoll()

	if _, err := g.reactor.Poll(timeoutMs); err != nil {
		return nil, err
	}

	g.mu.Lock()
	n := len(g.pendingRecv)
	if n > maxEvents {
		n = maxEvents
	}
	ready := make([]Member, 0, n)
	for i := 0; i < n; i++ {
		fd := g.pendingRecv[i]
		if st, ok := g.members[fd]; ok {
			st.pendingRecv = false
			ready = append(ready, st.member)
		}
	}
	g.pendingRecv = g.pendingRecv[n:]
	g.mu.Unlock()

	for _, m := range ready {
		if err := m.HandleReadable(); err != nil {
			return ready, err
		}
		g.stats.RecvHandled++
	}
	return ready, nil
}

func (g *PollGroup) drainPendingSend() {
	g.mu.Lock()
	fds := append([]uintptr(nil), g.pendingSend...)
	g.mu.Unlock()

	remaining := fds[:0]
	for _, fd := range fds {
		g.mu.Lock()
		st, ok := g.members[fd]
		g.mu.Unlock()
		if !ok {
			continue
		}
		empty, err := st.member.FlushSend()
		g.stats.SendFlushes++
		if err != nil {
			g.stats.AbortedSends++
			_ = st.member.Disconnect()
			_ = g.RemoveSock(st.member)
			continue
		}
		if !empty {
			remaining = append(remaining, fd)
		} else {
			st.pendingSend = false
		}
	}

	g.mu.Lock()
	g.pendingSend = remaining
	g.mu.Unlock()
}

func (g *PollGroup) pollNeedsPoll() {
	g.mu.Lock()
	fds := append([]uintptr(nil), g.needsPoll...)
	g.mu.Unlock()

	for _, fd := range fds {
		g.mu.Lock()
		st, ok := g.members[fd]
		g.mu.Unlock()
		if !ok {
			continue
		}
		if !st.member.NeedsPoll() {
			g.ClearNeedsPoll(st.member)
			continue
		}
		_ = st.member.HandleReadable()
	}
}

// StatsSnapshot returns a copy of cumulative poll-group counters.
func (g *PollGroup) StatsSnapshot() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func removeFd(list []uintptr, fd uintptr) []uintptr {
	for i, v := range list {
		if v == fd {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func containsFd(list []uintptr, fd uintptr) bool {
	for _, v := range list {
		if v == fd {
			return true
		}
	}
	return false
}
