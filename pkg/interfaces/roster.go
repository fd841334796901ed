// Package interfaces 定义 go-peerview 公共接口
//
// 本文件定义 Roster 接口，对应 internal/core/rendezvous/roster/ 实现。
package interfaces

import (
	"time"

	"github.com/dep2p/go-peerview/pkg/types"
)

// Roster rendezvous 客户端名册
//
// Add 活动从这里挑选邀请对象。
type Roster interface {
	// Clients 返回当前租约有效的客户端，最早连接的在前
	Clients() []Client
}

// Client 一个 rendezvous 客户端
type Client struct {
	PeerID types.PeerID
	// Adv 客户端广告（可选）
	Adv *types.PeerAdvertisement
	// ConnectedAt 首次建立租约的时间
	ConnectedAt time.Time
	// LeaseExpires 租约到期时间
	LeaseExpires time.Time
}
