package peerview

import (
	"time"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/pkg/types"
)

// Forever 自身 PVE 的过期时间
var Forever = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// PVEInfo 一个 peerview 成员的快照
type PVEInfo struct {
	PeerID types.PeerID
	Adv    *types.PeerAdvertisement
	// AdvGen 广告代数，不透明字符串
	AdvGen string
	// AdvExp 广告有效期，用于刷新 ExpiresAt
	AdvExp time.Duration

	TargetHash       bighash.Hash
	TargetHashRadius bighash.Hash

	// ExpiresAt 到期即被淘汰，自身为 Forever
	ExpiresAt time.Time
	Cluster   int
	Created   time.Time
}

// Expired 在 now 时刻是否已过期
func (i PVEInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// pve registry 持有的条目
type pve struct {
	PVEInfo
}

func (e *pve) snapshot() PVEInfo {
	info := e.PVEInfo
	info.Adv = e.Adv.Clone()
	return info
}
