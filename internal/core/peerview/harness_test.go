package peerview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

// ============================================================================
//                              测试替身
// ============================================================================

type sent struct {
	dest interfaces.Destination
	env  *types.Envelope
}

// fakeTransport 记录全部出站消息，不做实际投递
type fakeTransport struct {
	mu      sync.Mutex
	sent    []sent
	handler interfaces.InboundHandler
	addrs   []types.EndpointAddress
	failTo  map[types.PeerID]bool
}

func (f *fakeTransport) Send(_ context.Context, dest interfaces.Destination, env *types.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[dest.PeerID] {
		return interfaces.ErrUnreachable
	}
	f.sent = append(f.sent, sent{dest: dest, env: env})
	return nil
}

func (f *fakeTransport) SetHandler(_ string, h interfaces.InboundHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeTransport) LocalAddrs() []types.EndpointAddress { return f.addrs }
func (f *fakeTransport) Close() error                        { return nil }

// take 取出并清空已发送消息
func (f *fakeTransport) take() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

// messages 取出并解码已发送消息
func (f *fakeTransport) messages(t *testing.T) []message.Message {
	t.Helper()
	var out []message.Message
	for _, s := range f.take() {
		m, err := message.Open(s.env)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

type manualTask struct {
	owner     any
	delay     time.Duration
	task      interfaces.Task
	cancelled bool
}

func (t *manualTask) Cancel() bool {
	if t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

// manualScheduler 只记录任务，由测试直接驱动活动
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

func (s *manualScheduler) Schedule(owner any, delay time.Duration, task interfaces.Task) interfaces.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{owner: owner, delay: delay, task: task}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *manualScheduler) Push(owner any, _ interfaces.Priority, task interfaces.Task) interfaces.Handle {
	return s.Schedule(owner, 0, task)
}

func (s *manualScheduler) CancelAll(owner any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.owner == owner {
			t.cancelled = true
		}
	}
}

func (s *manualScheduler) Close() error { return nil }

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

type fakeRoster struct {
	clients []interfaces.Client
}

func (r *fakeRoster) Clients() []interfaces.Client { return r.clients }

// ============================================================================
//                              辅助函数
// ============================================================================

type testNode struct {
	*Peerview
	tr    *fakeTransport
	sched *manualScheduler
	clk   *clock.Mock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HashBits = 4
	return cfg
}

func peerID(name string) types.PeerID {
	return types.PeerID(types.PeerIDPrefix + name)
}

func newTestNode(t *testing.T, name string, cfg Config, mutate ...func(*Deps)) *testNode {
	t.Helper()
	n := &testNode{
		tr: &fakeTransport{
			addrs: []types.EndpointAddress{types.EndpointAddress("mem://" + name)},
		},
		sched: &manualScheduler{},
		clk:   clock.NewMock(),
	}
	deps := Deps{
		LocalID:   peerID(name),
		Transport: n.tr,
		Scheduler: n.sched,
		Clock:     n.clk,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	p, err := New(cfg, deps)
	require.NoError(t, err)
	n.Peerview = p
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return n
}

// placeAt 直接以 mask 建立实例并把自身放在 target
func (n *testNode) placeAt(t *testing.T, mask, target uint64) {
	t.Helper()
	n.lock()
	n.mask = bighash.FromUint64(mask)
	n.hasMask = true
	require.NoError(t, n.createSelfLocked(bighash.FromUint64(target)))
	n.state = StateMaintenance
	n.unlock()
}

// statusPong 以 n 的视角构造完整 STATUS Pong
func (n *testNode) statusPong(action message.PongAction) *message.Pong {
	n.lock()
	defer n.unlock()
	return n.pongLocked(action, true, "")
}

// deliver 把 from 发往 to 的消息交给 to 处理，返回各消息的处理结果
func deliver(t *testing.T, from, to *testNode) []error {
	t.Helper()
	var errs []error
	for _, s := range from.tr.take() {
		if s.dest.PeerID != to.localID {
			continue
		}
		errs = append(errs, to.HandleMessage(context.Background(), s.env))
	}
	return errs
}

func envelope(t *testing.T, src types.PeerID, m message.Message) *types.Envelope {
	t.Helper()
	env, err := message.NewEnvelope(src, m)
	require.NoError(t, err)
	return env
}

// recorder 记录监听器收到的事件
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(typ EventType, id types.PeerID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ && ev.PeerID == id {
			n++
		}
	}
	return n
}
