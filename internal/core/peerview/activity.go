package peerview

import (
	"time"

	"github.com/dep2p/go-peerview/pkg/interfaces"
)

// activity 后台活动
type activity int

const (
	actLocate activity = iota
	actAddressing
	actAnnounce
	actMaintain
	actAdd
	actRefresh
	actAutoCycle
	numActivities
)

func (a activity) String() string {
	switch a {
	case actLocate:
		return "locate"
	case actAddressing:
		return "addressing"
	case actAnnounce:
		return "announce"
	case actMaintain:
		return "maintain"
	case actAdd:
		return "add"
	case actRefresh:
		return "refresh"
	case actAutoCycle:
		return "auto-cycle"
	default:
		return "unknown"
	}
}

// startLocked 开始活动的新一轮循环
//
// 每个活动循环持有一个 epoch，epoch 过期的循环在下一次运行时直接退出，
// 因此任意时刻每种活动最多只有一个循环在运行。
func (p *Peerview) startLocked(a activity, delay time.Duration) {
	p.epoch[a]++
	p.rescheduleLocked(a, p.epoch[a], delay)
}

// rescheduleLocked 以同一 epoch 再次调度活动，delay 为 0 时立即排队
func (p *Peerview) rescheduleLocked(a activity, epoch uint64, delay time.Duration) {
	run := p.runner(a)
	task := func() { run(epoch) }
	if delay <= 0 {
		prio := interfaces.PriorityNormal
		if a == actAnnounce || a == actMaintain {
			prio = interfaces.PriorityHigh
		}
		p.scheduler.Push(p, prio, task)
		return
	}
	p.scheduler.Schedule(p, delay, task)
}

func (p *Peerview) runner(a activity) func(uint64) {
	switch a {
	case actLocate:
		return p.locate
	case actAddressing:
		return p.addressing
	case actAnnounce:
		return p.announce
	case actMaintain:
		return p.maintain
	case actAdd:
		return p.add
	case actAutoCycle:
		return p.autoCycle
	default:
		return p.refresh
	}
}

// perInstance 活动是否属于当前 peerview 实例，放弃实例时随之失效
func (a activity) perInstance() bool {
	return a != actRefresh && a != actAutoCycle
}

// staleLocked 活动是否应退出
func (p *Peerview) staleLocked(a activity, epoch uint64, states ...State) bool {
	if !p.running || epoch != p.epoch[a] {
		return true
	}
	if len(states) == 0 {
		return false
	}
	for _, s := range states {
		if p.state == s {
			return false
		}
	}
	log.Debug("活动状态已变化，退出", "activity", a.String(), "state", p.state.String())
	return true
}
