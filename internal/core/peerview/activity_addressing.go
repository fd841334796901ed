package peerview

import (
	"context"

	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/pkg/interfaces"
)

// addressing 向已知 PVE 请求地址分配
//
// 连续 MaxAddressingAttempts 轮未获分配则放弃该实例，回到 Locating。
func (p *Peerview) addressing(epoch uint64) {
	p.lock()
	if p.staleLocked(actAddressing, epoch, StateAddressing) || p.self != nil {
		p.unlock()
		return
	}

	p.addressingRounds++
	if p.addressingRounds > p.cfg.MaxAddressingAttempts {
		mask := p.mask
		p.resetInstanceLocked()
		p.enterLocatingLocked()
		p.unlock()
		log.Warn("等待地址分配超时，重新定位", "mask", mask.Hex(), "err", ErrTimeout)
		return
	}

	var outs []outbound
	for _, e := range p.shuffledPeersLocked() {
		if len(outs) >= p.cfg.MaxAddressRequests {
			break
		}
		outs = append(outs, outbound{
			dest: interfaces.ToPeer(e.PeerID),
			msg: &message.AddressRequest{
				PeerAdv:    p.selfAdv.Clone(),
				PeerAdvGen: p.selfAdvGen,
				PeerAdvExp: p.cfg.AddressRequestAdvExp,
			},
		})
	}
	p.rescheduleLocked(actAddressing, epoch, p.cfg.AddressingInterval)
	round := p.addressingRounds
	p.unlock()

	sent := p.sendAll(context.Background(), outs)
	log.Debug("已发送地址请求", "round", round, "sent", sent)
}
