package peerview

import (
	"math/big"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
)

// GetAssociatePeer 返回负责 cluster 的代表节点
//
// cluster 为本 cluster 时返回自身；否则从 cluster 开始依次检查其他
// cluster，返回第一个非空 cluster 最早登记的成员。
func (p *Peerview) GetAssociatePeer(cluster int) (PVEInfo, error) {
	if cluster < 0 || cluster >= p.ring.Clusters() {
		return PVEInfo{}, ErrInvalidArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.associateLocked(cluster)
	if err != nil {
		return PVEInfo{}, err
	}
	return e.snapshot(), nil
}

func (p *Peerview) associateLocked(cluster int) (*pve, error) {
	if p.self != nil && cluster == p.myCluster {
		return p.self, nil
	}
	n := len(p.reg.clusters)
	for i := 0; i < n; i++ {
		idx := (cluster + i) % n
		if p.self != nil && idx == p.myCluster {
			continue
		}
		if members := p.reg.clusters[idx].members; len(members) > 0 {
			return p.reg.entries[members[0]], nil
		}
	}
	return nil, ErrNotFound
}

// GetPeerForTargetHash 返回负责 hash 的节点
//
// hash 不在本 cluster 时等同 GetAssociatePeer；否则返回本 cluster 中
// target hash 与之最接近的成员（含自身），距离考虑 cluster 边界的回绕。
func (p *Peerview) GetPeerForTargetHash(h bighash.Hash) (PVEInfo, error) {
	if !p.ring.Space().Contains(h) {
		return PVEInfo{}, ErrInvalidArgument
	}
	target := p.ring.ClusterForHash(h)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.self == nil {
		return PVEInfo{}, ErrNotFound
	}
	if target != p.myCluster {
		e, err := p.associateLocked(target)
		if err != nil {
			return PVEInfo{}, err
		}
		return e.snapshot(), nil
	}

	c := p.reg.clusters[target]
	lo, hi, hb := c.Min.Big(), c.Max.Big(), h.Big()

	best := p.self
	bestDist := new(big.Int).Abs(new(big.Int).Sub(hb, p.self.TargetHash.Big()))
	for _, e := range p.reg.members(target) {
		t := e.TargetHash.Big()
		candidates := []*big.Int{
			// 低于下界回绕到上界
			new(big.Int).Sub(hi, new(big.Int).Sub(lo, t)),
			t,
			// 高于上界回绕到下界
			new(big.Int).Add(new(big.Int).Sub(t, hi), lo),
		}
		for _, eff := range candidates {
			d := new(big.Int).Abs(new(big.Int).Sub(hb, eff))
			if d.Cmp(bestDist) < 0 {
				best, bestDist = e, d
			}
		}
	}
	return best.snapshot(), nil
}
