package peerview

import (
	"context"

	"github.com/google/uuid"
)

// refresh 定期以新的代数重新发布本节点广告
func (p *Peerview) refresh(epoch uint64) {
	p.lock()
	if p.staleLocked(actRefresh, epoch) {
		p.unlock()
		return
	}
	p.selfAdv = p.advFn()
	p.selfAdvGen = uuid.NewString()
	if p.self != nil {
		p.self.Adv = p.selfAdv.Clone()
		p.self.AdvGen = p.selfAdvGen
	}
	adv := p.selfAdv.Clone()
	p.rescheduleLocked(actRefresh, epoch, p.cfg.PARefresh)
	p.unlock()

	p.publish(context.Background(), adv, p.cfg.DiscoveryPublishTTL)
}
