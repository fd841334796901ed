package peerview

import (
	"github.com/dep2p/go-peerview/internal/core/peerview/ring"
	"github.com/dep2p/go-peerview/pkg/types"
)

// cluster 一个 cluster 桶
//
// members 只保存节点 ID，条目由 registry.entries 唯一持有。
type cluster struct {
	ring.Range
	members   []types.PeerID
	histogram []HistogramEntry
	histValid bool
}

func (c *cluster) indexOf(id types.PeerID) int {
	for i, m := range c.members {
		if m == id {
			return i
		}
	}
	return -1
}

func (c *cluster) invalidate() {
	c.histogram = nil
	c.histValid = false
}

// registry PVE 表与 cluster 表
//
// 不是线程安全的，由 Peerview 的锁保护。变更产生的事件暂存在
// events 中，由 Peerview.unlock 在释放锁之后投递。
type registry struct {
	ring     *ring.Ring
	entries  map[types.PeerID]*pve
	clusters []*cluster
	modCount uint64
	events   []Event
}

func newRegistry(r *ring.Ring) *registry {
	reg := &registry{
		ring:    r,
		entries: make(map[types.PeerID]*pve),
	}
	for _, rng := range r.Ranges() {
		reg.clusters = append(reg.clusters, &cluster{Range: rng})
	}
	return reg
}

// get 查找条目
func (r *registry) get(id types.PeerID) (*pve, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// contains 是否已登记
func (r *registry) contains(id types.PeerID) bool {
	_, ok := r.entries[id]
	return ok
}

// add 登记条目，cluster 由 TargetHash 决定
func (r *registry) add(e *pve) error {
	if e == nil || e.PeerID.IsEmpty() {
		return ErrInvalidArgument
	}
	idx := r.ring.ClusterForHash(e.TargetHash)
	c := r.clusters[idx]
	if r.contains(e.PeerID) || c.indexOf(e.PeerID) >= 0 {
		return ErrAlreadyPresent
	}

	e.Cluster = idx
	r.entries[e.PeerID] = e
	c.members = append(c.members, e.PeerID)
	c.invalidate()
	r.modCount++
	r.events = append(r.events, Event{Type: EventAdd, PeerID: e.PeerID})
	return nil
}

// remove 移除条目
func (r *registry) remove(id types.PeerID) (*pve, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.entries, id)
	c := r.clusters[e.Cluster]
	if i := c.indexOf(id); i >= 0 {
		c.members = append(c.members[:i], c.members[i+1:]...)
	}
	c.invalidate()
	r.modCount++
	r.events = append(r.events, Event{Type: EventRemove, PeerID: id})
	return e, nil
}

// all 返回全部条目，按 cluster 与登记顺序
func (r *registry) all() []*pve {
	out := make([]*pve, 0, len(r.entries))
	for _, c := range r.clusters {
		for _, id := range c.members {
			out = append(out, r.entries[id])
		}
	}
	return out
}

// clear 清空全部条目，每个条目产生一个 Remove 事件
func (r *registry) clear() []*pve {
	removed := r.all()
	r.entries = make(map[types.PeerID]*pve)
	for _, c := range r.clusters {
		c.members = nil
		c.invalidate()
	}
	if len(removed) > 0 {
		r.modCount++
	}
	for _, e := range removed {
		r.events = append(r.events, Event{Type: EventRemove, PeerID: e.PeerID})
	}
	return removed
}

// members 返回 cluster 成员条目，最早登记的在前
func (r *registry) members(idx int) []*pve {
	c := r.clusters[idx]
	out := make([]*pve, 0, len(c.members))
	for _, id := range c.members {
		out = append(out, r.entries[id])
	}
	return out
}

// histogram 返回 cluster 直方图，必要时重建
func (r *registry) histogram(idx int) []HistogramEntry {
	c := r.clusters[idx]
	if !c.histValid {
		infos := make([]PVEInfo, 0, len(c.members))
		for _, e := range r.members(idx) {
			infos = append(infos, e.PVEInfo)
		}
		c.histogram = BuildHistogram(c.Range, infos)
		c.histValid = true
	}
	return c.histogram
}

// takeEvents 取出待投递事件
func (r *registry) takeEvents() []Event {
	ev := r.events
	r.events = nil
	return ev
}

func (r *registry) size() int {
	return len(r.entries)
}
