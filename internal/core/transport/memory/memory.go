// Package memory 实现进程内传输
//
// 同一 Network 上的 Transport 之间通过节点 ID 或 "mem://" 地址互相投递。
// 每个 Transport 有一个有界的入站队列和一个分发 goroutine，投递是异步的。
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dep2p/go-peerview/internal/util/logger"
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

var log = logger.Logger("transport/memory")

// 确保实现了接口
var _ interfaces.Transport = (*Transport)(nil)

// Scheme 内存地址协议
const Scheme = "mem"

// DefaultInboxSize 默认入站队列长度
const DefaultInboxSize = 256

// Network 一组可互相访问的内存传输
type Network struct {
	mu     sync.RWMutex
	byID   map[types.PeerID]*Transport
	byAddr map[types.EndpointAddress]*Transport
	// cut 被切断的有向链路
	cut map[[2]types.PeerID]bool
}

// NewNetwork 创建网络
func NewNetwork() *Network {
	return &Network{
		byID:   make(map[types.PeerID]*Transport),
		byAddr: make(map[types.EndpointAddress]*Transport),
		cut:    make(map[[2]types.PeerID]bool),
	}
}

// NewTransport 在网络上创建节点 id 的传输
func (n *Network) NewTransport(id types.PeerID) (*Transport, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	addr := types.EndpointAddress(fmt.Sprintf("%s://%s", Scheme, id.ShortString()))

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.byID[id]; ok {
		return nil, fmt.Errorf("memory: %s already attached", id.ShortString())
	}
	if _, ok := n.byAddr[addr]; ok {
		addr = types.EndpointAddress(fmt.Sprintf("%s://%s", Scheme, id))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		net:      n,
		id:       id,
		addr:     addr,
		inbox:    make(chan *types.Envelope, DefaultInboxSize),
		handlers: make(map[string]interfaces.InboundHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
	n.byID[id] = t
	n.byAddr[addr] = t

	t.wg.Add(1)
	go t.dispatch()
	return t, nil
}

// Partition 切断 a 与 b 之间的双向链路
func (n *Network) Partition(a, b types.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut[[2]types.PeerID{a, b}] = true
	n.cut[[2]types.PeerID{b, a}] = true
}

// Heal 恢复全部链路
func (n *Network) Heal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut = make(map[[2]types.PeerID]bool)
}

func (n *Network) lookup(from types.PeerID, dest interfaces.Destination) (*Transport, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var (
		t  *Transport
		ok bool
	)
	if !dest.PeerID.IsEmpty() {
		t, ok = n.byID[dest.PeerID]
	} else {
		t, ok = n.byAddr[dest.Address]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnreachable, dest)
	}
	if n.cut[[2]types.PeerID{from, t.id}] {
		return nil, fmt.Errorf("%w: link %s -> %s is down", interfaces.ErrUnreachable, from.ShortString(), t.id.ShortString())
	}
	return t, nil
}

func (n *Network) detach(t *Transport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.byID[t.id] == t {
		delete(n.byID, t.id)
	}
	if n.byAddr[t.addr] == t {
		delete(n.byAddr, t.addr)
	}
}

// Transport 内存传输
type Transport struct {
	net  *Network
	id   types.PeerID
	addr types.EndpointAddress

	inbox chan *types.Envelope

	mu       sync.RWMutex
	handlers map[string]interfaces.InboundHandler
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Send 实现 interfaces.Transport
func (t *Transport) Send(ctx context.Context, dest interfaces.Destination, env *types.Envelope) error {
	if env == nil || dest.IsEmpty() {
		return fmt.Errorf("memory: empty destination or envelope")
	}
	if t.isClosed() {
		return interfaces.ErrTransportClosed
	}
	target, err := t.net.lookup(t.id, dest)
	if err != nil {
		return err
	}

	cp := *env
	cp.Src = t.id
	cp.Body = slices.Clone(env.Body)
	select {
	case target.inbox <- &cp:
		return nil
	case <-target.ctx.Done():
		return fmt.Errorf("%w: %s", interfaces.ErrUnreachable, dest)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetHandler 实现 interfaces.Transport
func (t *Transport) SetHandler(protocol string, h interfaces.InboundHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h == nil {
		delete(t.handlers, protocol)
		return
	}
	t.handlers[protocol] = h
}

// LocalAddrs 实现 interfaces.Transport
func (t *Transport) LocalAddrs() []types.EndpointAddress {
	return []types.EndpointAddress{t.addr}
}

// ID 返回节点 ID
func (t *Transport) ID() types.PeerID {
	return t.id
}

// Close 实现 interfaces.Transport
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.net.detach(t)
	t.cancel()
	t.wg.Wait()
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *Transport) dispatch() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case env := <-t.inbox:
			t.mu.RLock()
			h := t.handlers[env.Protocol]
			t.mu.RUnlock()
			if h == nil {
				log.Debug("丢弃未注册协议的消息", "protocol", env.Protocol, "src", env.Src.ShortString())
				continue
			}
			if err := h(t.ctx, env); err != nil {
				log.Debug("入站处理失败", "protocol", env.Protocol, "src", env.Src.ShortString(), "err", err)
			}
		}
	}
}
