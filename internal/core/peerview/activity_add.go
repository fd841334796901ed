package peerview

import (
	"context"

	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

// add 存在空 cluster 或本 cluster 成员不足时邀请 rendezvous 客户端加入
//
// 有其他 PVE 时先发起推举，推举结束后再发送 INVITE；推举进行中或
// 他人推举未结束时本轮不邀请。
func (p *Peerview) add(epoch uint64) {
	p.lock()
	if p.staleLocked(actAdd, epoch, StateMaintenance) || p.self == nil {
		p.addArmed = false
		p.unlock()
		return
	}
	if !p.needAdditionalPeersLocked() {
		p.addArmed = false
		p.unlock()
		return
	}

	if p.pollOpenLocked() || p.clock.Now().Before(p.electionEnds) {
		p.rescheduleLocked(actAdd, epoch, p.cfg.AddInterval)
		p.unlock()
		log.Debug("推举进行中，暂缓邀请")
		return
	}

	var outs []outbound
	if len(p.candidates) == 0 && !p.voting {
		p.candidates = p.candidateClientsLocked()
		if len(p.candidates) > 0 {
			if outs = p.openPollLocked(); len(outs) > 0 {
				p.rescheduleLocked(actAdd, epoch, min(p.cfg.VotingExpiration, p.cfg.AddInterval))
				p.unlock()
				p.sendAll(context.Background(), outs)
				return
			}
		}
	}
	p.voting = false
	clear(p.voters)

	limit := p.cfg.invitations()
	var advs []*types.PeerAdvertisement
	for len(p.candidates) > 0 && len(outs) < limit {
		c := p.candidates[0]
		p.candidates = p.candidates[1:]
		if c.PeerID == p.localID || p.reg.contains(c.PeerID) {
			continue
		}
		outs = append(outs, outbound{
			dest: interfaces.ToPeer(c.PeerID),
			msg:  p.pongLocked(message.PongInvite, true, c.PeerID),
		})
		if c.Adv != nil {
			advs = append(advs, c.Adv.Clone())
		}
	}
	invited := len(outs)
	if invited < limit {
		if dest, ok := p.nextSeedLocked(); ok {
			outs = append(outs, p.pingTo(dest, "", true))
		}
	}
	p.rescheduleLocked(actAdd, epoch, p.cfg.AddInterval)
	p.unlock()

	ctx := context.Background()
	for _, adv := range advs {
		p.publish(ctx, adv, p.cfg.DiscoveryPublishTTL)
	}
	p.sendAll(ctx, outs)
	if invited > 0 {
		log.Debug("已邀请客户端加入 peerview", "count", invited)
	}
}
