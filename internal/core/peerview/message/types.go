package message

import (
	"fmt"
	"time"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/pkg/types"
)

// 协议名与元素名
const (
	// ProtocolName peerview 服务在传输层注册的协议名
	ProtocolName = "jxta:PeerView"

	ElementAddressRequest = "jxta:PeerviewAddressRequest"
	ElementAddressAssign  = "jxta:PeerviewAddressAssign"
	ElementPing           = "jxta:PeerviewPing"
	ElementPong           = "jxta:PeerviewPong"
)

// Kind 消息类型
type Kind int

const (
	KindAddressRequest Kind = iota
	KindAddressAssign
	KindPing
	KindPong
)

// String 返回元素名
func (k Kind) String() string {
	switch k {
	case KindAddressRequest:
		return ElementAddressRequest
	case KindAddressAssign:
		return ElementAddressAssign
	case KindPing:
		return ElementPing
	case KindPong:
		return ElementPong
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Label 返回短名称，用于日志与指标标签
func (k Kind) Label() string {
	switch k {
	case KindAddressRequest:
		return "address_request"
	case KindAddressAssign:
		return "address_assign"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Message 四种消息的公共接口
type Message interface {
	Kind() Kind
	Validate() error
}

// ============================================================================
//                              枚举
// ============================================================================

// RdvState Pong 发送方的 rendezvous 状态
type RdvState int

const (
	RdvStateRendezvous RdvState = 0
	RdvStateEdge       RdvState = 1
	RdvStateDemoting   RdvState = 2
)

// String 返回状态名
func (s RdvState) String() string {
	switch s {
	case RdvStateRendezvous:
		return "rendezvous"
	case RdvStateEdge:
		return "edge"
	case RdvStateDemoting:
		return "demoting"
	default:
		return fmt.Sprintf("RdvState(%d)", int(s))
	}
}

// PongAction Pong 的意图
type PongAction int

const (
	PongInvite  PongAction = 0
	PongPromote PongAction = 1
	PongDemote  PongAction = 2
	PongStatus  PongAction = 3
)

// String 返回动作名
func (a PongAction) String() string {
	switch a {
	case PongInvite:
		return "invite"
	case PongPromote:
		return "promote"
	case PongDemote:
		return "demote"
	case PongStatus:
		return "status"
	default:
		return fmt.Sprintf("PongAction(%d)", int(a))
	}
}

// ============================================================================
//                              消息结构
// ============================================================================

// AddressRequest 地址请求
type AddressRequest struct {
	// TargetHash 请求方当前地址（可选）
	TargetHash *bighash.Hash
	// TargetHashRadius 请求方当前半径（可选）
	TargetHashRadius *bighash.Hash

	PeerAdv    *types.PeerAdvertisement
	PeerAdvGen string
	// PeerAdvExp 广告有效期，0 表示未指定
	PeerAdvExp time.Duration
}

// Kind 实现 Message
func (*AddressRequest) Kind() Kind { return KindAddressRequest }

// Validate 校验必填字段
func (m *AddressRequest) Validate() error {
	if m.PeerAdv == nil {
		return invalid("PeerAdv")
	}
	if err := m.PeerAdv.Validate(); err != nil {
		return fmt.Errorf("%w: PeerAdv: %v", ErrInvalidMessage, err)
	}
	if m.PeerAdvGen == "" {
		return invalid("PeerAdv.adv_gen")
	}
	if m.PeerAdvExp < 0 {
		return invalid("PeerAdv.expiration")
	}
	return nil
}

// AddressAssign 地址分配
type AddressAssign struct {
	// PeerID 分配方
	PeerID       types.PeerID
	InstanceMask bighash.Hash
	TargetHash   bighash.Hash
}

// Kind 实现 Message
func (*AddressAssign) Kind() Kind { return KindAddressAssign }

// Validate 校验必填字段
func (m *AddressAssign) Validate() error {
	if m.PeerID.IsEmpty() {
		return invalid("peer_id")
	}
	return nil
}

// Ping 存活探测
//
// 目标由 DstPeerID 或 DstAddress 之一指定。
type Ping struct {
	SrcPeerID  types.PeerID
	DstPeerID  types.PeerID
	DstAddress types.EndpointAddress
	// DstAdvGen 发送方持有的目标广告代数，不一致时对方回带广告
	DstAdvGen string
	// AdvRequest 要求对方在 Pong 中附带广告
	AdvRequest bool
}

// Kind 实现 Message
func (*Ping) Kind() Kind { return KindPing }

// Validate 校验必填字段
func (m *Ping) Validate() error {
	if m.SrcPeerID.IsEmpty() {
		return invalid("SrcPeerID")
	}
	if m.DstPeerID.IsEmpty() && m.DstAddress.IsEmpty() {
		return invalid("DstPeerID|DstPeerAddress")
	}
	return nil
}

// PeerInfo Pong 中携带的成员信息
type PeerInfo struct {
	PeerID types.PeerID
	// Cluster associate 所在 cluster，仅 ClusterMember 使用，-1 表示未指定
	Cluster          int
	AdvGen           string
	TargetHash       bighash.Hash
	TargetHashRadius bighash.Hash
	Adv              *types.PeerAdvertisement
}

// Pong 状态通告
type Pong struct {
	PeerID           types.PeerID
	RdvState         RdvState
	Action           PongAction
	InstanceMask     bighash.Hash
	TargetHash       bighash.Hash
	TargetHashRadius bighash.Hash

	// PeerAdv 可选，短格式 Pong 不带广告
	PeerAdv    *types.PeerAdvertisement
	PeerAdvGen string
	// PeerAdvExp 广告有效期，0 表示未指定
	PeerAdvExp time.Duration

	Associates []PeerInfo
	Partners   []PeerInfo
	Candidates []PeerInfo
}

// Kind 实现 Message
func (*Pong) Kind() Kind { return KindPong }

// Validate 校验必填字段
func (m *Pong) Validate() error {
	if m.PeerID.IsEmpty() {
		return invalid("peer_id")
	}
	if m.PeerAdv != nil {
		if err := m.PeerAdv.Validate(); err != nil {
			return fmt.Errorf("%w: Adv: %v", ErrInvalidMessage, err)
		}
		if m.PeerAdv.PeerID != m.PeerID {
			return invalid("Adv.PID")
		}
	}
	for _, group := range [][]PeerInfo{m.Associates, m.Partners, m.Candidates} {
		for _, info := range group {
			if info.PeerID.IsEmpty() {
				return invalid("peer_info.peer_id")
			}
		}
	}
	return nil
}

// Referrals 返回 associate 与 partner 推荐
func (m *Pong) Referrals() []PeerInfo {
	out := make([]PeerInfo, 0, len(m.Associates)+len(m.Partners))
	out = append(out, m.Associates...)
	return append(out, m.Partners...)
}

// IsRendezvous 发送方是否为 rendezvous（含正在降级）
func (m *Pong) IsRendezvous() bool {
	return m.RdvState == RdvStateRendezvous || m.RdvState == RdvStateDemoting
}

func invalid(field string) error {
	return fmt.Errorf("%w: missing or malformed %s", ErrInvalidMessage, field)
}
