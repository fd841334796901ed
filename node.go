package peerview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-peerview/config"
	"github.com/dep2p/go-peerview/internal/core/identity"
	pvcore "github.com/dep2p/go-peerview/internal/core/peerview"
	"github.com/dep2p/go-peerview/internal/core/rendezvous/roster"
	"github.com/dep2p/go-peerview/internal/core/scheduler"
	"github.com/dep2p/go-peerview/internal/discovery/advstore"
	"github.com/dep2p/go-peerview/internal/util/logger"
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

var log = logger.Logger("node")

const (
	startTimeout = 30 * time.Second
	stopTimeout  = 30 * time.Second
)

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota
	// StateRunning 运行中
	StateRunning
	// StateStopped 已停止
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Node peerview 节点
//
// 一个 Node 只能启动一次，停止后不能再次启动。
type Node struct {
	config *config.Config
	app    *fx.App

	// 由 Fx 注入
	id        *identity.Identity
	pv        *pvcore.Peerview
	transport interfaces.Transport
	store     *advstore.Store
	roster    *roster.Roster
	sched     *scheduler.Scheduler
	registry  *prometheus.Registry

	mu    sync.Mutex
	state NodeState
}

// ════════════════════════════════════════════════════════════════════════════
//                              构造与生命周期
// ════════════════════════════════════════════════════════════════════════════

// New 创建节点但不启动
func New(_ context.Context, opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	n := &Node{config: o.config}
	app, err := buildFxApp(o, n)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	n.app = app
	return n, nil
}

// Start 启动全部组件
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrNodeClosed
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := n.app.Start(startCtx); err != nil {
		n.state = StateStopped
		log.Error("节点启动失败", "err", err)
		return fmt.Errorf("start: %w", err)
	}
	n.state = StateRunning
	log.Info("节点已启动", "peer", n.id.ID().ShortString(), "addrs", n.transport.LocalAddrs(), "passive", n.config.Passive)
	return nil
}

// Stop 按依赖的反向顺序停止全部组件
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateIdle:
		return ErrNotStarted
	case StateStopped:
		return ErrNodeClosed
	}

	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	n.state = StateStopped
	if err := n.app.Stop(stopCtx); err != nil {
		log.Error("节点停止失败", "err", err)
		return fmt.Errorf("stop: %w", err)
	}
	log.Info("节点已停止", "peer", n.id.ID().ShortString())
	return nil
}

// Close 停止节点并释放资源，可重复调用
func (n *Node) Close() error {
	n.mu.Lock()
	state := n.state
	n.mu.Unlock()

	switch state {
	case StateRunning:
		return n.Stop(context.Background())
	case StateIdle:
		// 未启动时 OnStop 钩子不会执行，直接释放构造阶段打开的资源
		n.mu.Lock()
		n.state = StateStopped
		n.mu.Unlock()
		return multierr.Combine(n.transport.Close(), n.store.Close(), n.sched.Close())
	}
	return nil
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// ════════════════════════════════════════════════════════════════════════════
//                              访问器
// ════════════════════════════════════════════════════════════════════════════

// ID 返回节点 ID
func (n *Node) ID() types.PeerID {
	return n.id.ID()
}

// Addrs 返回本地端点地址
func (n *Node) Addrs() []types.EndpointAddress {
	return n.transport.LocalAddrs()
}

// Config 返回节点配置
func (n *Node) Config() *config.Config {
	return n.config
}

// Peerview 返回 peerview 实例
func (n *Node) Peerview() *pvcore.Peerview {
	return n.pv
}

// Discovery 返回广告存储
func (n *Node) Discovery() *advstore.Store {
	return n.store
}

// Registry 返回指标注册表
func (n *Node) Registry() *prometheus.Registry {
	return n.registry
}

// ════════════════════════════════════════════════════════════════════════════
//                              客户端租约
// ════════════════════════════════════════════════════════════════════════════

// AddClient 登记或续约 rendezvous 客户端
//
// 租约时长取自 Rendezvous.LeaseTTL。客户端节点会在 peerview 的 Add
// 活动中被邀请探测 peerview。
func (n *Node) AddClient(id types.PeerID, adv *types.PeerAdvertisement) error {
	return n.roster.Add(id, adv, n.config.Rendezvous.LeaseTTL.Duration())
}

// RemoveClient 移除客户端租约
func (n *Node) RemoveClient(id types.PeerID) bool {
	return n.roster.Remove(id)
}

// Clients 返回租约有效的客户端
func (n *Node) Clients() []interfaces.Client {
	return n.roster.Clients()
}
