// Package ring 把地址空间划分为等宽连续的 cluster
//
// cluster i 的范围为 [divisor*i, divisor*i + divisor - 1]，最后一个
// cluster 的上界固定为空间最大值，因此所有 cluster 无缝覆盖整个空间。
package ring

import (
	"fmt"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
)

// Range 一个 cluster 的地址范围
type Range struct {
	Index int
	Min   bighash.Hash
	Max   bighash.Hash
	Mid   bighash.Hash
}

// Contains h 是否落在范围内
func (r Range) Contains(h bighash.Hash) bool {
	return h.Cmp(r.Min) >= 0 && h.Cmp(r.Max) <= 0
}

// Ring 地址空间的 cluster 划分
type Ring struct {
	space            *bighash.Space
	divisor          bighash.Hash
	peerAddressSpace bighash.Hash
	ranges           []Range
}

// New 创建划分
//
// clusters 不能超过空间大小；members 与 replicas 用于计算
// 单个节点应负责的地址宽度。
func New(space *bighash.Space, clusters, members, replicas int) (*Ring, error) {
	if space == nil {
		return nil, fmt.Errorf("%w: nil space", ErrInvalidRing)
	}
	if clusters <= 0 || members <= 0 || replicas <= 0 {
		return nil, fmt.Errorf("%w: clusters=%d members=%d replicas=%d", ErrInvalidRing, clusters, members, replicas)
	}
	n := bighash.FromUint64(uint64(clusters))
	if n.Cmp(space.Size()) > 0 {
		return nil, fmt.Errorf("%w: %d clusters exceed address space", ErrInvalidRing, clusters)
	}

	divisor := space.Size().Div(n)
	r := &Ring{
		space:   space,
		divisor: divisor,
		peerAddressSpace: divisor.
			Div(bighash.FromUint64(uint64(members))).
			Mul(bighash.FromUint64(uint64(replicas))),
		ranges: make([]Range, clusters),
	}

	half := divisor.Rsh(1)
	for i := range r.ranges {
		lo := divisor.Mul(bighash.FromUint64(uint64(i)))
		hi := lo.Add(divisor).Sub(bighash.One)
		if i == clusters-1 {
			hi = space.Max()
		}
		r.ranges[i] = Range{Index: i, Min: lo, Max: hi, Mid: lo.Add(half)}
	}
	return r, nil
}

// Space 地址空间
func (r *Ring) Space() *bighash.Space { return r.space }

// Clusters cluster 数量
func (r *Ring) Clusters() int { return len(r.ranges) }

// Divisor 单个 cluster 的宽度
func (r *Ring) Divisor() bighash.Hash { return r.divisor }

// PeerAddressSpace 单个节点应负责的地址宽度
func (r *Ring) PeerAddressSpace() bighash.Hash { return r.peerAddressSpace }

// Range 返回第 i 个 cluster 的范围
func (r *Ring) Range(i int) Range {
	return r.ranges[i]
}

// Ranges 返回所有范围的副本
func (r *Ring) Ranges() []Range {
	out := make([]Range, len(r.ranges))
	copy(out, r.ranges)
	return out
}

// ClusterForHash 返回 h 所属的 cluster
//
// floor(h / divisor)，对空间不能整除时多出的尾部归入最后一个 cluster。
func (r *Ring) ClusterForHash(h bighash.Hash) int {
	q := h.Div(r.divisor)
	last := uint64(len(r.ranges) - 1)
	if q.Cmp(bighash.FromUint64(last)) > 0 {
		return int(last)
	}
	return int(q.Uint64())
}

// RandomInCluster 返回第 i 个 cluster 中的随机地址
//
// 取 rand(divisor) + min。
func (r *Ring) RandomInCluster(i int) bighash.Hash {
	return r.space.Rand(r.divisor).Add(r.ranges[i].Min)
}
