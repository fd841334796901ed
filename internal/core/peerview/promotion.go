package peerview

import (
	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

// ============================================================================
//                              推举
// ============================================================================
//
// Add 在邀请客户端之前先向其他 PVE 发送携带候选列表的 PROMOTE Pong。
// 收到推举的 PVE 回复自己的候选并在 VotingWait 内暂停邀请；发起方
// 收到带候选的回复时放弃本轮候选，避免多个 PVE 同时招募同一批客户端。

// openPollLocked 向其他 PVE 发起推举，没有其他 PVE 时返回 nil
func (p *Peerview) openPollLocked() []outbound {
	var outs []outbound
	for _, e := range p.reg.all() {
		if e == p.self {
			continue
		}
		outs = append(outs, outbound{
			dest: interfaces.ToPeer(e.PeerID),
			msg:  p.promotePongLocked(e.PeerID),
		})
		p.voters[e.PeerID] = struct{}{}
	}
	if len(outs) > 0 {
		p.voting = true
		p.pollCloses = p.clock.Now().Add(p.cfg.VotingExpiration)
		log.Debug("发起推举", "voters", len(outs), "candidates", len(p.candidates))
	}
	return outs
}

// pollOpenLocked 本节点发起的推举是否仍在等待回复
func (p *Peerview) pollOpenLocked() bool {
	return p.voting && len(p.voters) > 0 && p.clock.Now().Before(p.pollCloses)
}

// handlePromotionLocked 处理已知 PVE 的 PROMOTE Pong，返回是否需要回复
func (p *Peerview) handlePromotionLocked(pong *message.Pong) bool {
	switch {
	case p.pollOpenLocked():
		delete(p.voters, pong.PeerID)
		if len(pong.Candidates) > 0 {
			p.candidates = nil
			log.Debug("对方也在招募，放弃本轮候选", "peer", pong.PeerID.ShortString())
		}
		return false
	case !p.voting:
		p.electionEnds = p.clock.Now().Add(p.cfg.VotingWait)
		return p.self != nil
	default:
		// 投票已截止
		clear(p.voters)
		return false
	}
}

func (p *Peerview) promotePongLocked(dest types.PeerID) *message.Pong {
	pong := p.pongLocked(message.PongPromote, false, dest)
	for _, c := range p.candidates {
		info := message.PeerInfo{PeerID: c.PeerID, Cluster: -1}
		if c.Adv != nil && c.Adv.PeerID == c.PeerID {
			info.Adv = c.Adv.Clone()
		}
		pong.Candidates = append(pong.Candidates, info)
	}
	return pong
}

// candidateClientsLocked 返回可邀请的客户端，按名册顺序（最早连接的在前）
func (p *Peerview) candidateClientsLocked() []interfaces.Client {
	if p.roster == nil {
		return nil
	}
	var out []interfaces.Client
	for _, c := range p.roster.Clients() {
		if c.PeerID == p.localID || p.reg.contains(c.PeerID) {
			continue
		}
		out = append(out, c)
	}
	return out
}
