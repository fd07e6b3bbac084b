package reactor

import (
	"testing"

	"github.com/kvaster/nvmetcp/api"
)

// fakeReactor lets tests drive readiness callbacks directly instead of
// touching a real epoll fd.
type fakeReactor struct {
	cbs map[uintptr]api.FDCallback
}

func newFakeReactor() *fakeReactor { return &fakeReactor{cbs: make(map[uintptr]api.FDCallback)} }

func (r *fakeReactor) Register(fd uintptr, events api.FDEvent, cb api.FDCallback) error {
	r.cbs[fd] = cb
	return nil
}
func (r *fakeReactor) Modify(fd uintptr, events api.FDEvent) error { return nil }
func (r *fakeReactor) Unregister(fd uintptr) error                 { delete(r.cbs, fd); return nil }
func (r *fakeReactor) Poll(timeoutMs int) (int, error)             { return 0, nil }
func (r *fakeReactor) Close() error                                { return nil }

func (r *fakeReactor) fire(fd uintptr, ev api.FDEvent) {
	if cb, ok := r.cbs[fd]; ok {
		cb(fd, ev)
	}
}

type fakeSocket struct{ fd uintptr }

func (s *fakeSocket) Fd() uintptr                                     { return s.fd }
func (s *fakeSocket) SendAsync(iovs []api.SendIov) (uint32, error)    { return 0, nil }
func (s *fakeSocket) PollSendCompletions() (uint32, uint32, bool)     { return 0, 0, false }
func (s *fakeSocket) RecvChunks(maxLen int) ([]api.Chunk, error)      { return nil, nil }
func (s *fakeSocket) RecvBytes(iovs [][]byte) (int, error)            { return 0, nil }
func (s *fakeSocket) FreeChunks(chunks []api.Chunk)                   {}
func (s *fakeSocket) SetRecvBuf(bytes int) error                      { return nil }
func (s *fakeSocket) SetNonblocking(nb bool) error                    { return nil }
func (s *fakeSocket) Close(force bool) error                          { return nil }

type fakeMember struct {
	sock        *fakeSocket
	flushEmpty  bool
	flushErr    error
	handled     int
	needsPoll   bool
	disconnects int
}

func (m *fakeMember) Socket() api.Socket { return m.sock }
func (m *fakeMember) FlushSend() (bool, error) {
	return m.flushEmpty, m.flushErr
}
func (m *fakeMember) HandleReadable() error {
	m.handled++
	return nil
}
func (m *fakeMember) NeedsPoll() bool { return m.needsPoll }
func (m *fakeMember) Disconnect() error {
	m.disconnects++
	return nil
}

func TestPollGroupAddRemove(t *testing.T) {
	fr := newFakeReactor()
	g := NewPollGroup(fr)
	m := &fakeMember{sock: &fakeSocket{fd: 7}, flushEmpty: true}
	if err := g.AddSock(m); err != nil {
		t.Fatalf("AddSock: %v", err)
	}
	if _, ok := fr.cbs[7]; !ok {
		t.Fatalf("expected reactor registration for fd 7")
	}
	if err := g.RemoveSock(m); err != nil {
		t.Fatalf("RemoveSock: %v", err)
	}
	if _, ok := fr.cbs[7]; ok {
		t.Fatalf("expected reactor unregistration for fd 7")
	}
}

func TestPollGroupPendingRecvDispatch(t *testing.T) {
	fr := newFakeReactor()
	g := NewPollGroup(fr)
	m := &fakeMember{sock: &fakeSocket{fd: 3}, flushEmpty: true}
	if err := g.AddSock(m); err != nil {
		t.Fatalf("AddSock: %v", err)
	}
	fr.fire(3, api.EventRead)

	ready, err := g.Poll(16, 0)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(ready) != 1 || m.handled != 1 {
		t.Fatalf("expected member to be handled once, got ready=%d handled=%d", len(ready), m.handled)
	}

	// A second Poll with no new readiness should not re-dispatch.
	ready, err = g.Poll(16, 0)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("expected no pending-recv members on second poll, got %d", len(ready))
	}
}

func TestPollGroupPendingSendDrain(t *testing.T) {
	fr := newFakeReactor()
	g := NewPollGroup(fr)
	m := &fakeMember{sock: &fakeSocket{fd: 9}, flushEmpty: false}
	if err := g.AddSock(m); err != nil {
		t.Fatalf("AddSock: %v", err)
	}
	fr.fire(9, api.EventWrite)

	if _, err := g.Poll(16, 0); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	g.mu.Lock()
	stillPending := containsFd(g.pendingSend, 9)
	g.mu.Unlock()
	if !stillPending {
		t.Fatalf("expected fd to remain in pending_send while queue is non-empty")
	}

	m.flushEmpty = true
	if _, err := g.Poll(16, 0); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	g.mu.Lock()
	stillPending = containsFd(g.pendingSend, 9)
	g.mu.Unlock()
	if stillPending {
		t.Fatalf("expected fd to leave pending_send once flush empties the queue")
	}
}

func TestPollGroupAbortsMemberOnFlushSendError(t *testing.T) {
	fr := newFakeReactor()
	g := NewPollGroup(fr)
	m := &fakeMember{sock: &fakeSocket{fd: 11}, flushErr: api.ErrClosed}
	if err := g.AddSock(m); err != nil {
		t.Fatalf("AddSock: %v", err)
	}
	fr.fire(11, api.EventWrite)

	if _, err := g.Poll(16, 0); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if m.disconnects != 1 {
		t.Fatalf("expected FlushSend error to disconnect the member, got %d", m.disconnects)
	}
	if _, ok := fr.cbs[11]; ok {
		t.Fatalf("expected member to be unregistered from the reactor after abort")
	}
	g.mu.Lock()
	_, stillMember := g.members[11]
	g.mu.Unlock()
	if stillMember {
		t.Fatalf("expected member to be dropped from the poll group after abort")
	}
}

func TestPollGroupNeedsPoll(t *testing.T) {
	fr := newFakeReactor()
	g := NewPollGroup(fr)
	m := &fakeMember{sock: &fakeSocket{fd: 5}, flushEmpty: true, needsPoll: true}
	if err := g.AddSock(m); err != nil {
		t.Fatalf("AddSock: %v", err)
	}
	g.MarkNeedsPoll(m)

	if _, err := g.Poll(16, 0); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if m.handled != 1 {
		t.Fatalf("expected needs_poll member to be handled without readiness, got %d", m.handled)
	}

	m.needsPoll = false
	if _, err := g.Poll(16, 0); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if m.handled != 1 {
		t.Fatalf("expected member to be cleared from needs_poll once it stops needing it, got handled=%d", m.handled)
	}
}
