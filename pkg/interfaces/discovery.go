// Package interfaces 定义 go-peerview 公共接口
//
// 本文件定义 Discovery 接口，对应 internal/discovery/advstore/ 实现。
package interfaces

import (
	"context"
	"time"

	"github.com/dep2p/go-peerview/pkg/types"
)

// Discovery 定义广告发布与查询接口
//
// peerview 只以 best-effort 方式调用 Publish，失败仅记录日志。
type Discovery interface {
	// Publish 发布广告，ttl 到期后广告失效
	Publish(ctx context.Context, adv *types.PeerAdvertisement, ttl time.Duration) error

	// Get 查询广告，不存在时返回 ErrAdvNotFound
	Get(ctx context.Context, id types.PeerID) (*types.PeerAdvertisement, error)

	// Resolve 返回节点的端点地址
	Resolve(ctx context.Context, id types.PeerID) ([]types.EndpointAddress, error)

	// Close 关闭存储
	Close() error
}
