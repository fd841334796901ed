package peerview

import (
	"context"

	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/pkg/interfaces"
)

// announce 获得地址后向全部已知 PVE 通告，然后进入 Maintenance
func (p *Peerview) announce(epoch uint64) {
	p.lock()
	if p.staleLocked(actAnnounce, epoch, StateAnnouncing) || p.self == nil {
		p.unlock()
		return
	}
	var outs []outbound
	for _, e := range p.reg.all() {
		if e == p.self {
			continue
		}
		outs = append(outs, outbound{
			dest: interfaces.ToPeer(e.PeerID),
			msg:  p.pongLocked(message.PongStatus, true, e.PeerID),
		})
	}
	p.unlock()

	sent := p.sendAll(context.Background(), outs)

	p.lock()
	if p.staleLocked(actAnnounce, epoch, StateAnnouncing) {
		p.unlock()
		return
	}
	p.state = StateMaintenance
	p.startLocked(actMaintain, 0)
	target := p.self.TargetHash
	p.unlock()

	log.Info("已加入 peerview", "target", target.Hex(), "announced", sent)
}
