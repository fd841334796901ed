// Package interfaces 定义 go-peerview 公共接口
//
// 本文件定义 Transport 接口，对应 internal/core/transport/ 实现。
package interfaces

import (
	"context"

	"github.com/dep2p/go-peerview/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
// Transport 接口
// ════════════════════════════════════════════════════════════════════════════

// Transport 定义消息传输接口
//
// 传输层只投递不透明的 Envelope，按 Envelope.Protocol 分发给
// 已注册的入站处理器。
type Transport interface {
	// Send 向目标发送一条消息
	//
	// 目标无法解析时返回 ErrUnreachable，超时返回 ctx 错误。
	Send(ctx context.Context, dest Destination, env *types.Envelope) error

	// SetHandler 注册（h 为 nil 时注销）协议的入站处理器
	SetHandler(protocol string, h InboundHandler)

	// LocalAddrs 返回本地可达的端点地址
	LocalAddrs() []types.EndpointAddress

	// Close 关闭传输
	Close() error
}

// InboundHandler 入站消息回调
//
// 回调在传输层的 goroutine 上执行，返回的错误只用于日志。
type InboundHandler func(ctx context.Context, env *types.Envelope) error

// Destination 发送目标：节点 ID 或原始端点地址，二选一
type Destination struct {
	PeerID  types.PeerID
	Address types.EndpointAddress
}

// ToPeer 以节点 ID 为目标
func ToPeer(id types.PeerID) Destination {
	return Destination{PeerID: id}
}

// ToAddress 以端点地址为目标
func ToAddress(addr types.EndpointAddress) Destination {
	return Destination{Address: addr}
}

// IsEmpty 是否未指定目标
func (d Destination) IsEmpty() bool {
	return d.PeerID.IsEmpty() && d.Address.IsEmpty()
}

// String 返回目标的可读形式
func (d Destination) String() string {
	if !d.PeerID.IsEmpty() {
		return d.PeerID.String()
	}
	return d.Address.String()
}
