package peerview

import (
	"context"
)

// minSwitchRounds 两次角色切换之间至少经过的检查轮数
const minSwitchRounds = 3

func (p *Peerview) startAutoCycleLocked() {
	if p.cfg.AutoCycle > 0 {
		p.startLocked(actAutoCycle, p.cfg.AutoCycle)
	}
}

// autoCycle 按 peerview 负载在 rendezvous 与 Passive 之间切换
//
// 所在 cluster 已满、本节点不在最早登记的 ClusterMembers 个成员内且
// 没有客户端时降级；Passive 节点连续超过 LonelinessFactor 轮未见
// rendezvous 时自行加入。
func (p *Peerview) autoCycle(epoch uint64) {
	p.lock()
	if p.staleLocked(actAutoCycle, epoch) {
		p.unlock()
		return
	}

	active := p.state.IsActive()
	want := active
	switch {
	case p.state == StateMaintenance && !p.needAdditionalPeersLocked():
		p.loneliness = 0
		if !p.remainLocked() && p.clientCountLocked() == 0 {
			want = false
		}
	case p.state == StatePassive:
		if p.seenRendezvousLocked() {
			p.loneliness = 0
			break
		}
		p.loneliness++
		if p.loneliness > p.cfg.LonelinessFactor {
			p.sinceSwitch = minSwitchRounds
			want = true
		}
	}

	if want == active || p.sinceSwitch < minSwitchRounds {
		p.sinceSwitch++
		p.rescheduleLocked(actAutoCycle, epoch, p.cfg.AutoCycle)
		p.unlock()
		return
	}

	p.sinceSwitch = 0
	p.loneliness = 0
	if want {
		p.enterLocatingLocked()
		p.rescheduleLocked(actAutoCycle, epoch, p.cfg.AutoCycle)
		p.unlock()
		log.Info("长时间未见 rendezvous，加入 peerview", "peer", p.localID.ShortString())
		return
	}

	// demoteLocked 以新的 epoch 重启本活动
	outs := p.demoteLocked()
	p.unlock()
	p.sendAll(context.Background(), outs)
	log.Info("peerview 成员富余，自动降级", "peer", p.localID.ShortString())
}

// remainLocked 本节点是否在所在 cluster 最早登记的 ClusterMembers 个成员内
func (p *Peerview) remainLocked() bool {
	if p.self == nil {
		return false
	}
	for i, e := range p.reg.members(p.myCluster) {
		if i >= p.cfg.ClusterMembers {
			break
		}
		if e == p.self {
			return true
		}
	}
	return false
}

func (p *Peerview) clientCountLocked() int {
	if p.roster == nil {
		return 0
	}
	return len(p.roster.Clients())
}

// seenRendezvousLocked 最近一个周期内是否收到过 rendezvous 的 Pong
func (p *Peerview) seenRendezvousLocked() bool {
	if p.lastRdvSeen.IsZero() {
		return false
	}
	return p.clock.Since(p.lastRdvSeen) <= p.cfg.AutoCycle
}
