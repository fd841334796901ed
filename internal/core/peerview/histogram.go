package peerview

import (
	"math/big"
	"slices"
	"sort"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/internal/core/peerview/ring"
	"github.com/dep2p/go-peerview/pkg/types"
)

// HistogramEntry cluster 内一段由同一组节点负责的连续区间 [Start, End]
//
// Peers 为空表示空洞。
type HistogramEntry struct {
	Start bighash.Hash
	End   bighash.Hash
	Peers []types.PeerID
}

type segment struct {
	lo, hi *big.Int
	peer   types.PeerID
}

// BuildHistogram 计算 cluster 的覆盖直方图
//
// 每个成员覆盖 [target-radius, target+radius]。低于 cluster 下界的部分
// 回绕到上界，超出上界的部分回绕到下界。结果按 Start 排序、互不重叠，
// 并恰好覆盖 [rng.Min, rng.Max]。
func BuildHistogram(rng ring.Range, members []PVEInfo) []HistogramEntry {
	lo, hi := rng.Min.Big(), rng.Max.Big()

	var segs []segment
	for _, m := range members {
		segs = append(segs, coverage(lo, hi, m)...)
	}

	// 区间边界：每段的起点与终点之后一位
	points := []*big.Int{lo, new(big.Int).Add(hi, big.NewInt(1))}
	for _, s := range segs {
		points = append(points, s.lo, new(big.Int).Add(s.hi, big.NewInt(1)))
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Cmp(points[j]) < 0 })
	points = slices.CompactFunc(points, func(a, b *big.Int) bool { return a.Cmp(b) == 0 })

	var out []HistogramEntry
	for i := 0; i+1 < len(points); i++ {
		start := points[i]
		end := new(big.Int).Sub(points[i+1], big.NewInt(1))

		var peers []types.PeerID
		for _, s := range segs {
			if s.lo.Cmp(start) <= 0 && s.hi.Cmp(start) >= 0 && !slices.Contains(peers, s.peer) {
				peers = append(peers, s.peer)
			}
		}

		if n := len(out); n > 0 && samePeers(out[n-1].Peers, peers) {
			out[n-1].End = bighash.FromBig(end)
			continue
		}
		out = append(out, HistogramEntry{
			Start: bighash.FromBig(start),
			End:   bighash.FromBig(end),
			Peers: peers,
		})
	}
	return out
}

// coverage 计算一个成员在 [lo, hi] 内覆盖的区段（最多三段）
func coverage(lo, hi *big.Int, m PVEInfo) []segment {
	target, radius := m.TargetHash.Big(), m.TargetHashRadius.Big()
	start := new(big.Int).Sub(target, radius)
	end := new(big.Int).Add(target, radius)

	var segs []segment
	add := func(a, b *big.Int) {
		if a.Cmp(lo) < 0 {
			a = lo
		}
		if b.Cmp(hi) > 0 {
			b = hi
		}
		if a.Cmp(b) <= 0 {
			segs = append(segs, segment{lo: a, hi: b, peer: m.PeerID})
		}
	}

	// 低于下界的部分回绕到上界
	if start.Cmp(lo) < 0 {
		wrapStart := new(big.Int).Sub(hi, new(big.Int).Sub(lo, start))
		if wrapStart.Cmp(lo) > 0 {
			add(wrapStart, hi)
		}
	}

	add(start, end)

	// 超出上界的部分回绕到下界
	if end.Cmp(hi) > 0 {
		wrapEnd := new(big.Int).Add(new(big.Int).Sub(end, hi), lo)
		if wrapEnd.Cmp(hi) < 0 {
			add(lo, wrapEnd)
		}
	}
	return segs
}

func samePeers(a, b []types.PeerID) bool {
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !slices.Contains(b, id) {
			return false
		}
	}
	return true
}
