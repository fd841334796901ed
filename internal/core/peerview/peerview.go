// Package peerview 实现 rendezvous 节点之间自组织的 peerview 覆盖网络
//
// # 地址空间
//
// 地址空间 [0, 2^HashBits) 被等分为 ClustersCount 个 cluster，
// 每个成员（PVE）在空间中选择一个 target hash，并声明一个覆盖半径。
//
// # 状态机
//
//	Stopped -> Passive            Start
//	Passive -> Locating           SetActive(true)
//	Locating -> Addressing        收到第一个带实例掩码的 Pong
//	Locating -> Maintenance       探测次数耗尽，自建实例
//	Addressing -> Announcing      收到掩码匹配的 AddressAssign
//	Announcing -> Maintenance     向已知 PVE 通告完毕
//	Maintenance -> Locating       发现掩码更小的实例
//	Maintenance -> Passive        SetActive(false) 或 AutoCycle 降级
//	Passive -> Locating           AutoCycle 长时间未见 rendezvous
//	any -> Stopped                Stop
//
// # 并发
//
// 所有状态由一把互斥锁保护。发送消息前释放锁，发送后重新校验状态；
// 监听器回调总在锁外执行。后台活动通过 Scheduler 调度，每个活动
// 在执行前校验自己期望的状态，状态已变化时直接返回。
package peerview

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/internal/core/peerview/ring"
	"github.com/dep2p/go-peerview/internal/util/logger"
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

var log = logger.Logger("peerview")

// AdvProvider 返回本节点当前的广告
type AdvProvider func() *types.PeerAdvertisement

// Deps peerview 的外部协作者
type Deps struct {
	LocalID   types.PeerID
	SelfAdv   AdvProvider
	Transport interfaces.Transport
	Scheduler interfaces.Scheduler

	// 以下可选
	Discovery interfaces.Discovery
	Roster    interfaces.Roster
	Metrics   interfaces.PeerviewMetrics
	Clock     clock.Clock
	Seeds     []interfaces.Destination
}

// Peerview peerview 实例
type Peerview struct {
	cfg   Config
	space *bighash.Space
	ring  *ring.Ring

	localID   types.PeerID
	advFn     AdvProvider
	transport interfaces.Transport
	scheduler interfaces.Scheduler
	discovery interfaces.Discovery
	roster    interfaces.Roster
	metrics   interfaces.PeerviewMetrics
	clock     clock.Clock
	seeds     []interfaces.Destination

	limiter   *requestLimiter
	listeners *listeners

	mu         sync.Mutex
	running    bool
	state      State
	mask       bighash.Hash
	hasMask    bool
	self       *pve
	myCluster  int
	selfAdv    *types.PeerAdvertisement
	selfAdvGen string
	reg        *registry

	// referrals 待 Ping 的推荐节点，referralsSent 为上一轮已 Ping 的前缀长度，
	// referralSet 与 referrals 内容一致
	referrals     []types.PeerID
	referralSet   map[types.PeerID]struct{}
	referralsSent int

	locateProbes     int
	seedCursor       int
	addressingRounds int
	addArmed         bool

	// 推举：candidates 待邀请的客户端，voters 尚未回复本节点推举的 PVE
	candidates   []interfaces.Client
	voters       map[types.PeerID]struct{}
	voting       bool
	pollCloses   time.Time
	electionEnds time.Time

	// AutoCycle：lastRdvSeen 最近一次收到 rendezvous Pong 的时间
	loneliness  int
	sinceSwitch int
	lastRdvSeen time.Time

	epoch [numActivities]uint64
}

// New 创建 peerview
func New(cfg Config, deps Deps) (*Peerview, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.LocalID.Validate(); err != nil {
		return nil, fmt.Errorf("%w: local id: %v", ErrInvalidArgument, err)
	}
	if deps.Transport == nil || deps.Scheduler == nil {
		return nil, fmt.Errorf("%w: transport and scheduler are required", ErrInvalidArgument)
	}

	space, err := bighash.NewSpace(cfg.HashBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	r, err := ring.New(space, cfg.ClustersCount, cfg.ClusterMembers, cfg.ReplicasCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	p := &Peerview{
		cfg:       cfg,
		space:     space,
		ring:      r,
		localID:   deps.LocalID,
		advFn:     deps.SelfAdv,
		transport: deps.Transport,
		scheduler: deps.Scheduler,
		discovery: deps.Discovery,
		roster:    deps.Roster,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		seeds:     slices.Clone(deps.Seeds),
		listeners: newListeners(),
		state:     StateStopped,
		myCluster: -1,
		reg:       newRegistry(r),

		referralSet: make(map[types.PeerID]struct{}),
		voters:      make(map[types.PeerID]struct{}),
	}
	if p.clock == nil {
		p.clock = clock.New()
	}
	if p.metrics == nil {
		p.metrics = interfaces.NopMetrics{}
	}
	if p.advFn == nil {
		p.advFn = p.defaultAdv
	}
	p.limiter, err = newRequestLimiter(cfg.AddressRequestRate, cfg.AddressRequestBurst, p.clock)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Peerview) defaultAdv() *types.PeerAdvertisement {
	return &types.PeerAdvertisement{
		PeerID:     p.localID,
		Endpoints:  p.transport.LocalAddrs(),
		Rendezvous: true,
	}
}

// ============================================================================
//                              锁与事件
// ============================================================================

func (p *Peerview) lock() {
	p.mu.Lock()
}

// unlock 释放锁并投递锁内产生的事件
func (p *Peerview) unlock() {
	p.reportLocked()
	events := p.reg.takeEvents()
	p.mu.Unlock()
	p.listeners.deliver(events)
}

func (p *Peerview) reportLocked() {
	p.metrics.SetState(int(p.state))
	p.metrics.SetPVEs(p.reg.size())
	for i, c := range p.reg.clusters {
		p.metrics.SetClusterMembers(i, len(c.members))
	}
}

// AddEventListener 注册事件监听器
func (p *Peerview) AddEventListener(name string, fn Listener) error {
	return p.listeners.add(name, fn)
}

// RemoveEventListener 注销事件监听器
func (p *Peerview) RemoveEventListener(name string) error {
	return p.listeners.remove(name)
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动 peerview，进入 Passive 状态并注册入站处理器
func (p *Peerview) Start(ctx context.Context) error {
	p.lock()
	if p.running {
		p.unlock()
		return ErrAlreadyStarted
	}
	p.running = true
	p.state = StatePassive
	p.selfAdv = p.advFn()
	p.selfAdvGen = uuid.NewString()
	adv := p.selfAdv.Clone()
	p.loneliness = 0
	p.sinceSwitch = 0
	p.lastRdvSeen = time.Time{}
	p.startLocked(actRefresh, p.cfg.PARefresh)
	p.startAutoCycleLocked()
	p.unlock()

	p.transport.SetHandler(message.ProtocolName, p.HandleMessage)
	p.publish(ctx, adv, p.cfg.DiscoveryPublishTTL)

	log.Info("peerview 已启动", "peer", p.localID.ShortString(), "clusters", p.cfg.ClustersCount)
	return nil
}

// Stop 停止 peerview
//
// 取消全部待执行活动，清空 PVE（逐个触发 Remove 事件）。
func (p *Peerview) Stop(_ context.Context) error {
	p.lock()
	if !p.running {
		p.unlock()
		return ErrNotStarted
	}
	p.running = false
	p.state = StateStopped
	p.scheduler.CancelAll(p)
	p.resetInstanceLocked()
	p.epoch[actRefresh]++
	p.epoch[actAutoCycle]++
	p.unlock()

	p.transport.SetHandler(message.ProtocolName, nil)
	log.Info("peerview 已停止", "peer", p.localID.ShortString())
	return nil
}

// SetActive 切换是否参与 peerview
//
// true：Passive -> Locating。false：通知已知 PVE 本节点降级，清空成员，
// 回到 Passive 并触发 EventDemote。
func (p *Peerview) SetActive(active bool) error {
	p.lock()
	if !p.running {
		p.unlock()
		return ErrNotStarted
	}

	if active {
		if p.state == StatePassive {
			p.enterLocatingLocked()
			log.Debug("开始定位 peerview", "peer", p.localID.ShortString())
		}
		p.unlock()
		return nil
	}

	if !p.state.IsActive() {
		p.unlock()
		return nil
	}
	outs := p.demoteLocked()
	p.unlock()

	p.sendAll(context.Background(), outs)
	log.Info("已退出 peerview", "peer", p.localID.ShortString())
	return nil
}

// demoteLocked 清空成员回到 Passive，返回发给已知 PVE 的 DEMOTE Pong
func (p *Peerview) demoteLocked() []outbound {
	var outs []outbound
	if p.self != nil {
		for _, e := range p.reg.all() {
			if e == p.self {
				continue
			}
			outs = append(outs, outbound{dest: interfaces.ToPeer(e.PeerID), msg: p.pongLocked(message.PongDemote, false, e.PeerID)})
		}
	}
	p.scheduler.CancelAll(p)
	p.resetInstanceLocked()
	p.state = StatePassive
	p.startLocked(actRefresh, p.cfg.PARefresh)
	p.startAutoCycleLocked()
	p.reg.events = append(p.reg.events, Event{Type: EventDemote, PeerID: p.localID})
	return outs
}

// enterLocatingLocked 进入 Locating 并启动 Locate 活动
func (p *Peerview) enterLocatingLocked() {
	p.state = StateLocating
	p.locateProbes = 0
	p.startLocked(actLocate, time.Second)
}

// joinLocked 加入指定实例，进入 Addressing
func (p *Peerview) joinLocked(mask bighash.Hash) {
	p.mask = mask
	p.hasMask = true
	p.state = StateAddressing
	p.addressingRounds = 0
	p.epoch[actLocate]++
	p.startLocked(actAddressing, 0)
}

// resetInstanceLocked 放弃当前实例
//
// 除 Refresh 与 AutoCycle 外的所有活动 epoch 前移，已出队的旧任务随之失效。
func (p *Peerview) resetInstanceLocked() {
	for a := range p.epoch {
		if activity(a).perInstance() {
			p.epoch[a]++
		}
	}
	p.reg.clear()
	p.self = nil
	p.myCluster = -1
	p.hasMask = false
	p.mask = bighash.Zero
	p.referrals = nil
	clear(p.referralSet)
	p.referralsSent = 0
	p.candidates = nil
	clear(p.voters)
	p.voting = false
	p.pollCloses = time.Time{}
	p.electionEnds = time.Time{}
	p.addArmed = false
}

// createSelfLocked 在 target 处建立自身 PVE
func (p *Peerview) createSelfLocked(target bighash.Hash) error {
	if old, ok := p.reg.get(p.localID); ok {
		_, _ = p.reg.remove(old.PeerID)
	}
	e := &pve{PVEInfo: PVEInfo{
		PeerID:           p.localID,
		Adv:              p.selfAdv.Clone(),
		AdvGen:           p.selfAdvGen,
		AdvExp:           p.cfg.PVEExpiration,
		TargetHash:       target,
		TargetHashRadius: p.ring.PeerAddressSpace().Rsh(1),
		ExpiresAt:        Forever,
		Created:          p.clock.Now(),
	}}
	if err := p.reg.add(e); err != nil {
		return err
	}
	p.self = e
	p.myCluster = e.Cluster
	return nil
}

// liveSelfLocked 本节点是否持有有效地址
func (p *Peerview) liveSelfLocked() bool {
	return p.self != nil && p.hasMask
}

// ============================================================================
//                              查询
// ============================================================================

// LocalID 返回本节点 ID
func (p *Peerview) LocalID() types.PeerID {
	return p.localID
}

// Ring 返回地址空间划分
func (p *Peerview) Ring() *ring.Ring {
	return p.ring
}

// State 返回当前状态
func (p *Peerview) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// InstanceMask 返回当前实例掩码
func (p *Peerview) InstanceMask() (bighash.Hash, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mask, p.hasMask
}

// SelfPVE 返回自身 PVE
func (p *Peerview) SelfPVE() (PVEInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.self == nil {
		return PVEInfo{}, false
	}
	return p.self.snapshot(), true
}

// PVEs 返回全部 PVE（含自身）
func (p *Peerview) PVEs() []PVEInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	all := p.reg.all()
	out := make([]PVEInfo, 0, len(all))
	for _, e := range all {
		out = append(out, e.snapshot())
	}
	return out
}

// PVE 返回指定节点的 PVE
func (p *Peerview) PVE(id types.PeerID) (PVEInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.reg.get(id)
	if !ok {
		return PVEInfo{}, ErrNotFound
	}
	return e.snapshot(), nil
}

// Contains 是否已知该节点
func (p *Peerview) Contains(id types.PeerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.contains(id)
}

// ClusterCount 返回 cluster 数
func (p *Peerview) ClusterCount() int {
	return p.ring.Clusters()
}

// MyCluster 返回本节点所在 cluster
func (p *Peerview) MyCluster() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.myCluster, p.self != nil
}

// ClusterMembers 返回 cluster 成员，最早登记的在前
func (p *Peerview) ClusterMembers(cluster int) ([]types.PeerID, error) {
	if cluster < 0 || cluster >= p.ring.Clusters() {
		return nil, ErrInvalidArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.reg.clusters[cluster].members), nil
}

// Histogram 返回 cluster 的覆盖直方图
func (p *Peerview) Histogram(cluster int) ([]HistogramEntry, error) {
	if cluster < 0 || cluster >= p.ring.Clusters() {
		return nil, ErrInvalidArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	hist := p.reg.histogram(cluster)
	out := make([]HistogramEntry, len(hist))
	for i, h := range hist {
		out[i] = HistogramEntry{Start: h.Start, End: h.End, Peers: slices.Clone(h.Peers)}
	}
	return out, nil
}

// GlobalView 返回全部已知节点（含自身）
func (p *Peerview) GlobalView() []types.PeerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	all := p.reg.all()
	out := make([]types.PeerID, 0, len(all))
	for _, e := range all {
		out = append(out, e.PeerID)
	}
	return out
}

// LocalView 返回本 cluster 成员（含自身）
func (p *Peerview) LocalView() []types.PeerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.self == nil {
		return nil
	}
	return slices.Clone(p.reg.clusters[p.myCluster].members)
}

// ============================================================================
//                              出站
// ============================================================================

// outbound 一条待发送消息
type outbound struct {
	dest interfaces.Destination
	msg  message.Message
}

// sendAll 依次发送，返回成功数。调用方不得持有锁。
func (p *Peerview) sendAll(ctx context.Context, outs []outbound) int {
	sent := 0
	for _, o := range outs {
		if err := p.send(ctx, o.dest, o.msg); err != nil {
			log.Debug("发送消息失败",
				"kind", o.msg.Kind().Label(),
				"dest", o.dest.String(),
				"err", err)
			continue
		}
		sent++
	}
	return sent
}

func (p *Peerview) send(ctx context.Context, dest interfaces.Destination, m message.Message) error {
	env, err := message.NewEnvelope(p.localID, m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	if err := p.transport.Send(ctx, dest, env); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return err
	}
	p.metrics.MessageSent(m.Kind().Label())
	return nil
}

// publish 尽力发布广告
func (p *Peerview) publish(ctx context.Context, adv *types.PeerAdvertisement, ttl time.Duration) {
	if p.discovery == nil || adv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()
	if err := p.discovery.Publish(ctx, adv, ttl); err != nil {
		log.Debug("发布广告失败", "peer", adv.PeerID.ShortString(), "err", err)
	}
}

func (p *Peerview) pingTo(dest interfaces.Destination, advGen string, advReq bool) outbound {
	return outbound{
		dest: dest,
		msg: &message.Ping{
			SrcPeerID:  p.localID,
			DstPeerID:  dest.PeerID,
			DstAddress: dest.Address,
			DstAdvGen:  advGen,
			AdvRequest: advReq,
		},
	}
}

// pongLocked 构造 Pong，要求已持有自身 PVE
//
// full 时附带本节点广告。Associate 为其他 cluster 最早登记的成员，
// Partner 为本 cluster 其余成员（不含 exclude）。
func (p *Peerview) pongLocked(action message.PongAction, full bool, exclude types.PeerID) *message.Pong {
	pong := &message.Pong{
		PeerID:           p.localID,
		RdvState:         message.RdvStateRendezvous,
		Action:           action,
		InstanceMask:     p.mask,
		TargetHash:       p.self.TargetHash,
		TargetHashRadius: p.self.TargetHashRadius,
	}
	if action == message.PongDemote {
		pong.RdvState = message.RdvStateDemoting
	}
	if full {
		pong.PeerAdv = p.selfAdv.Clone()
		pong.PeerAdvGen = p.selfAdvGen
		pong.PeerAdvExp = p.cfg.PVEExpiration
	}

	for i, c := range p.reg.clusters {
		if i == p.myCluster {
			for _, id := range c.members {
				if id == p.localID || id == exclude {
					continue
				}
				pong.Partners = append(pong.Partners, peerInfo(p.reg.entries[id], -1))
			}
			continue
		}
		if len(c.members) > 0 && c.members[0] != exclude {
			pong.Associates = append(pong.Associates, peerInfo(p.reg.entries[c.members[0]], i))
		}
	}
	return pong
}

func peerInfo(e *pve, cluster int) message.PeerInfo {
	return message.PeerInfo{
		PeerID:           e.PeerID,
		Cluster:          cluster,
		AdvGen:           e.AdvGen,
		TargetHash:       e.TargetHash,
		TargetHashRadius: e.TargetHashRadius,
		Adv:              e.Adv.Clone(),
	}
}

// shuffledPeersLocked 返回打乱顺序的非自身 PVE
func (p *Peerview) shuffledPeersLocked() []*pve {
	var out []*pve
	for _, e := range p.reg.all() {
		if e != p.self {
			out = append(out, e)
		}
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// nextSeedLocked 轮询种子与已知 PVE
func (p *Peerview) nextSeedLocked() (interfaces.Destination, bool) {
	candidates := slices.Clone(p.seeds)
	for _, e := range p.reg.all() {
		if e != p.self {
			candidates = append(candidates, interfaces.ToPeer(e.PeerID))
		}
	}
	if len(candidates) == 0 {
		return interfaces.Destination{}, false
	}
	d := candidates[p.seedCursor%len(candidates)]
	p.seedCursor++
	return d, true
}

// needAdditionalPeersLocked 是否存在空 cluster 或本 cluster 成员不足
func (p *Peerview) needAdditionalPeersLocked() bool {
	for _, c := range p.reg.clusters {
		if len(c.members) == 0 {
			return true
		}
	}
	if p.self == nil {
		return false
	}
	return len(p.reg.clusters[p.myCluster].members) < p.cfg.ClusterMembers
}
