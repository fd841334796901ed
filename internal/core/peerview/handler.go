package peerview

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

// HandleMessage 入站消息的唯一入口
//
// 格式错误或与当前状态冲突的消息只会被丢弃并记录日志。
func (p *Peerview) HandleMessage(ctx context.Context, env *types.Envelope) error {
	if env == nil {
		return ErrInvalidMessage
	}
	m, err := message.Open(env)
	if err != nil {
		log.Debug("丢弃无法解析的消息", "src", env.Src.ShortString(), "element", env.Element, "err", err)
		return invalidMessage(err)
	}
	p.metrics.MessageReceived(m.Kind().Label())

	switch m := m.(type) {
	case *message.AddressRequest:
		err = p.handleAddressRequest(ctx, m)
	case *message.AddressAssign:
		err = p.handleAddressAssign(m)
	case *message.Ping:
		err = p.handlePing(ctx, m)
	case *message.Pong:
		err = p.handlePong(ctx, m)
	}
	if err != nil {
		log.Debug("消息未被接受", "kind", m.Kind().Label(), "src", env.Src.ShortString(), "err", err)
	}
	return err
}

// ============================================================================
//                              AddressRequest
// ============================================================================

func (p *Peerview) handleAddressRequest(ctx context.Context, req *message.AddressRequest) error {
	requester := req.PeerAdv.PeerID
	if requester == p.localID {
		return nil
	}
	if !p.limiter.allow(requester) {
		return fmt.Errorf("%w: address request rate exceeded", ErrBusy)
	}

	p.lock()
	if !p.running || !p.liveSelfLocked() || (p.state != StateMaintenance && p.state != StateAnnouncing) {
		p.unlock()
		return fmt.Errorf("%w: not a peerview member", ErrBusy)
	}

	var target bighash.Hash
	if e, ok := p.reg.get(requester); ok {
		target = e.TargetHash
	} else {
		target = p.ring.RandomInCluster(p.chooseClusterLocked())
	}
	assign := &message.AddressAssign{
		PeerID:       p.localID,
		InstanceMask: p.mask,
		TargetHash:   target,
	}
	p.unlock()

	p.publish(ctx, req.PeerAdv, p.cfg.AddressRequestAdvExp)
	if err := p.send(ctx, interfaces.ToPeer(requester), assign); err != nil {
		return err
	}
	log.Debug("已分配地址", "peer", requester.ShortString(), "target", target.Hex())
	return nil
}

// chooseClusterLocked 反向二分查找离本 cluster 尽量远的空 cluster
//
// 没有空 cluster 时返回本 cluster。每轮迭代要么返回，要么严格缩小
// [low, high]，因此一定终止。
func (p *Peerview) chooseClusterLocked() int {
	n, my := len(p.reg.clusters), p.myCluster
	empty := func(c int) bool { return len(p.reg.clusters[c].members) == 0 }

	low, high := 0, n-1
	for n > 1 && low <= high {
		mid := (high-low)/2 + low
		if my < low || (my <= high && high-my <= my-low) {
			for c := low; c <= mid; c++ {
				if empty(c) {
					return c
				}
			}
			low = mid + 1
		} else {
			stop := mid
			if low == high {
				stop = low - 1
			}
			for c := high; c > stop; c-- {
				if empty(c) {
					return c
				}
			}
			if low == high {
				break
			}
			high = mid
		}
		if high == low && high == my {
			break
		}
	}
	return my
}

// ============================================================================
//                              AddressAssign
// ============================================================================

func (p *Peerview) handleAddressAssign(assign *message.AddressAssign) error {
	p.lock()
	switch {
	case !p.running:
		p.unlock()
		return ErrNotStarted
	case !p.hasMask:
		p.unlock()
		return fmt.Errorf("%w: unsolicited address assignment", ErrInvalidMessage)
	case p.self != nil:
		p.unlock()
		return fmt.Errorf("%w: already assigned", ErrBusy)
	case !assign.InstanceMask.Equal(p.mask):
		p.unlock()
		return ErrMaskMismatch
	case p.state != StateAddressing:
		p.unlock()
		return fmt.Errorf("%w: state %s", ErrBusy, p.state)
	case !p.space.Contains(assign.TargetHash):
		p.unlock()
		return fmt.Errorf("%w: target hash out of space", ErrInvalidMessage)
	}

	if err := p.createSelfLocked(assign.TargetHash); err != nil {
		p.unlock()
		return err
	}
	p.state = StateAnnouncing
	p.startLocked(actAnnounce, 0)
	p.unlock()

	log.Debug("收到地址分配", "from", assign.PeerID.ShortString(), "target", assign.TargetHash.Hex())
	return nil
}

// ============================================================================
//                              Ping
// ============================================================================

func (p *Peerview) handlePing(ctx context.Context, ping *message.Ping) error {
	if ping.SrcPeerID == p.localID {
		return nil
	}

	p.lock()
	if !p.running || !p.pingForMeLocked(ping) || !p.liveSelfLocked() {
		p.unlock()
		return nil
	}
	full := ping.AdvRequest || ping.DstAdvGen != p.selfAdvGen
	pong := p.pongLocked(message.PongStatus, full, ping.SrcPeerID)
	p.unlock()

	return p.send(ctx, interfaces.ToPeer(ping.SrcPeerID), pong)
}

// pingForMeLocked 按节点 ID 寻址的 Ping 必须指向本节点
//
// 按端点地址寻址的 Ping 已由传输送达本节点，监听地址可能是通配地址，
// 不与本地端点比较。
func (p *Peerview) pingForMeLocked(ping *message.Ping) bool {
	if !ping.DstPeerID.IsEmpty() {
		return ping.DstPeerID == p.localID
	}
	return ping.DstAddress != ""
}

// ============================================================================
//                              Pong
// ============================================================================

func (p *Peerview) handlePong(ctx context.Context, pong *message.Pong) error {
	if pong.PeerID == p.localID {
		return nil
	}

	p.lock()
	if !p.running {
		p.unlock()
		return nil
	}
	if pong.IsRendezvous() {
		p.lastRdvSeen = p.clock.Now()
	}

	// 降级或边缘节点离开 peerview
	if pong.Action == message.PongDemote || pong.RdvState == message.RdvStateEdge {
		_, err := p.reg.remove(pong.PeerID)
		p.unlock()
		if err == nil {
			log.Debug("PVE 已降级", "peer", pong.PeerID.ShortString())
		}
		return nil
	}

	switch {
	case !p.hasMask:
		if p.state == StatePassive && pong.Action != message.PongInvite {
			p.unlock()
			return nil
		}
		p.joinLocked(pong.InstanceMask)
		log.Debug("发现 peerview 实例", "mask", pong.InstanceMask.Hex(), "via", pong.PeerID.ShortString())

	case !pong.InstanceMask.Equal(p.mask):
		if pong.InstanceMask.Less(p.mask) {
			old := p.mask
			p.resetInstanceLocked()
			p.metrics.InstanceReset()
			p.state = StateLocating
			p.joinLocked(pong.InstanceMask)
			log.Info("切换到掩码更小的 peerview 实例", "old", old.Hex(), "new", pong.InstanceMask.Hex())
			break
		}
		// 对方实例应当切换过来：回一个 INVITE，自身状态不变
		var outs []outbound
		if p.liveSelfLocked() {
			outs = append(outs, outbound{
				dest: interfaces.ToPeer(pong.PeerID),
				msg:  p.pongLocked(message.PongInvite, true, pong.PeerID),
			})
		}
		p.unlock()
		p.sendAll(ctx, outs)
		return ErrMaskMismatch
	}

	var (
		outs  []outbound
		advs  []*types.PeerAdvertisement
		err   error
		added bool
	)
	if e, ok := p.reg.get(pong.PeerID); ok {
		var adv *types.PeerAdvertisement
		adv, err = p.updatePVELocked(e, pong)
		if adv != nil {
			advs = append(advs, adv)
		}
		if err == nil && pong.Action == message.PongPromote && p.handlePromotionLocked(pong) {
			outs = append(outs, outbound{
				dest: interfaces.ToPeer(pong.PeerID),
				msg:  p.promotePongLocked(pong.PeerID),
			})
		}
	} else {
		added, err = p.addPVELocked(pong)
		if added {
			advs = append(advs, pong.PeerAdv.Clone())
			if p.state == StateMaintenance && p.liveSelfLocked() {
				outs = append(outs, outbound{
					dest: interfaces.ToPeer(pong.PeerID),
					msg:  p.pongLocked(message.PongInvite, true, pong.PeerID),
				})
			}
		}
	}
	if err == nil {
		advs = append(advs, p.queueReferralsLocked(pong)...)
	}
	p.unlock()

	for _, adv := range advs {
		p.publish(ctx, adv, p.cfg.DiscoveryPublishTTL)
	}
	p.sendAll(ctx, outs)
	return err
}

// updatePVELocked 以 Pong 刷新已知 PVE，返回需要发布的新广告
func (p *Peerview) updatePVELocked(e *pve, pong *message.Pong) (*types.PeerAdvertisement, error) {
	if !e.TargetHash.Equal(pong.TargetHash) {
		_, _ = p.reg.remove(e.PeerID)
		return nil, fmt.Errorf("%w: target hash changed", ErrInvalidArgument)
	}

	now := p.clock.Now()
	if !e.TargetHashRadius.Equal(pong.TargetHashRadius) {
		e.TargetHashRadius = pong.TargetHashRadius
		p.reg.clusters[e.Cluster].invalidate()
	}
	e.ExpiresAt = now.Add(e.AdvExp)

	if pong.PeerAdv == nil || pong.PeerAdvGen == "" || pong.PeerAdvGen == e.AdvGen {
		return nil, nil
	}
	e.AdvExp = p.advExp(pong)
	if p.liveSelfLocked() {
		e.ExpiresAt = now.Add(e.AdvExp)
	} else {
		// 尚未加入时缩短过期，让 Maintain 尽快 Ping 对方
		e.ExpiresAt = now.Add(p.cfg.PongDue)
	}
	e.AdvGen = pong.PeerAdvGen
	e.Adv = pong.PeerAdv.Clone()
	return e.Adv.Clone(), nil
}

// addPVELocked 由 Pong 创建新 PVE
func (p *Peerview) addPVELocked(pong *message.Pong) (bool, error) {
	if pong.RdvState != message.RdvStateRendezvous {
		return false, nil
	}
	if pong.PeerAdv == nil || pong.PeerAdvGen == "" {
		return false, fmt.Errorf("%w: short pong from unknown peer", ErrInvalidMessage)
	}
	if !p.space.Contains(pong.TargetHash) {
		return false, fmt.Errorf("%w: target hash out of space", ErrInvalidMessage)
	}

	now := p.clock.Now()
	e := &pve{PVEInfo: PVEInfo{
		PeerID:           pong.PeerID,
		Adv:              pong.PeerAdv.Clone(),
		AdvGen:           pong.PeerAdvGen,
		AdvExp:           p.advExp(pong),
		TargetHash:       pong.TargetHash,
		TargetHashRadius: pong.TargetHashRadius,
		ExpiresAt:        now.Add(p.cfg.PingDue),
		Created:          now,
	}}
	if err := p.reg.add(e); err != nil {
		return false, err
	}
	log.Debug("新增 PVE", "peer", pong.PeerID.ShortString(), "cluster", e.Cluster)
	return true, nil
}

func (p *Peerview) advExp(pong *message.Pong) time.Duration {
	if pong.PeerAdvExp > 0 {
		return pong.PeerAdvExp
	}
	return p.cfg.PVEExpiration
}

// referralQueueFactor 推荐队列容量为 MaxPingProbes 的倍数
const referralQueueFactor = 4

// queueReferralsLocked 将未知的推荐节点排入 Ping 队列，返回随推荐携带的广告
//
// 队列已满时丢弃其余推荐。
func (p *Peerview) queueReferralsLocked(pong *message.Pong) []*types.PeerAdvertisement {
	var advs []*types.PeerAdvertisement
	limit := p.cfg.MaxPingProbes * referralQueueFactor
	for _, info := range pong.Referrals() {
		if len(p.referrals) >= limit {
			break
		}
		id := info.PeerID
		if _, queued := p.referralSet[id]; queued || id == p.localID || p.reg.contains(id) {
			continue
		}
		p.referrals = append(p.referrals, id)
		p.referralSet[id] = struct{}{}
		if info.Adv != nil && info.Adv.PeerID == id {
			advs = append(advs, info.Adv.Clone())
		}
	}
	return advs
}
