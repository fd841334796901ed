package peerview

import (
	"context"
	"math/rand/v2"

	"github.com/dep2p/go-peerview/pkg/interfaces"
)

// maintain 淘汰过期 PVE，Ping 即将过期的 PVE 与推荐节点
//
// 在 Maintenance 下首次发现需要补充成员时启动 Add。
func (p *Peerview) maintain(epoch uint64) {
	p.lock()
	if p.staleLocked(actMaintain, epoch, StateAddressing, StateMaintenance) {
		p.unlock()
		return
	}

	outs, evicted := p.checkPVEsLocked()
	outs = append(outs, p.probeReferralsLocked()...)

	p.rescheduleLocked(actMaintain, epoch, p.cfg.MaintainInterval)
	if p.state == StateMaintenance && !p.addArmed && p.needAdditionalPeersLocked() {
		p.addArmed = true
		p.startLocked(actAdd, 0)
	}
	p.unlock()

	for range evicted {
		p.metrics.PVEEvicted()
	}
	if evicted > 0 {
		log.Debug("已淘汰过期 PVE", "count", evicted)
	}
	p.sendAll(context.Background(), outs)
}

// checkPVEsLocked 淘汰过期条目，并为即将过期的条目准备 Ping
func (p *Peerview) checkPVEsLocked() ([]outbound, int) {
	now := p.clock.Now()
	var (
		outs    []outbound
		evicted int
	)
	for _, e := range p.reg.all() {
		if e == p.self {
			continue
		}
		if e.Expired(now) {
			if _, err := p.reg.remove(e.PeerID); err == nil {
				evicted++
			}
			continue
		}
		if e.ExpiresAt.Sub(now) <= p.cfg.PingDue {
			outs = append(outs, p.pingTo(interfaces.ToPeer(e.PeerID), e.AdvGen, false))
		}
	}
	return outs, evicted
}

// probeReferralsLocked 丢弃上一轮已 Ping 的推荐，打乱后 Ping 至多 MaxPingProbes 个
//
// 已 Ping 的节点保留在队首直到下一轮，期间重复的推荐会被去重。
func (p *Peerview) probeReferralsLocked() []outbound {
	drop := min(p.referralsSent, len(p.referrals))
	for _, id := range p.referrals[:drop] {
		delete(p.referralSet, id)
	}
	pending := p.referrals[drop:]

	kept := pending[:0]
	for _, id := range pending {
		if p.reg.contains(id) {
			delete(p.referralSet, id)
			continue
		}
		kept = append(kept, id)
	}
	p.referrals = kept
	rand.Shuffle(len(p.referrals), func(i, j int) {
		p.referrals[i], p.referrals[j] = p.referrals[j], p.referrals[i]
	})

	n := min(len(p.referrals), p.cfg.MaxPingProbes)
	outs := make([]outbound, 0, n)
	for _, id := range p.referrals[:n] {
		outs = append(outs, p.pingTo(interfaces.ToPeer(id), "", true))
	}
	p.referralsSent = n
	return outs
}
