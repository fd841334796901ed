package peerview

import (
	"context"
	"time"
)

// locate 探测种子节点以寻找已有实例
//
// 第 n 次探测后等待 2^n 秒；探测次数达到 MaxLocateProbes 仍无响应时
// 自建新实例。
func (p *Peerview) locate(epoch uint64) {
	p.lock()
	if p.staleLocked(actLocate, epoch, StateLocating) {
		p.unlock()
		return
	}

	if p.locateProbes >= p.cfg.MaxLocateProbes {
		err := p.createInstanceLocked()
		mask := p.mask
		p.unlock()
		if err != nil {
			log.Warn("创建 peerview 实例失败", "err", err)
			return
		}
		log.Info("未找到 peerview，已创建新实例", "mask", mask.Hex())
		return
	}

	dest, ok := p.nextSeedLocked()
	delay := time.Second << p.locateProbes
	p.locateProbes++
	p.rescheduleLocked(actLocate, epoch, delay)
	p.unlock()

	if ok {
		p.sendAll(context.Background(), []outbound{p.pingTo(dest, "", true)})
	}
}

// createInstanceLocked 以随机掩码与随机地址建立新实例
func (p *Peerview) createInstanceLocked() error {
	p.mask = p.space.RandFull()
	p.hasMask = true
	if err := p.createSelfLocked(p.space.RandFull()); err != nil {
		p.hasMask = false
		return err
	}
	p.state = StateMaintenance
	p.startLocked(actMaintain, time.Second)
	return nil
}
