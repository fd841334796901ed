// Package interfaces 定义 go-peerview 公共接口
//
// 本文件定义 peerview 指标接口，对应 internal/core/metrics/ 实现。
package interfaces

// PeerviewMetrics peerview 指标钩子
//
// 实现必须线程安全且不阻塞。
type PeerviewMetrics interface {
	// SetState 记录当前状态
	SetState(state int)

	// SetPVEs 记录已知 PVE 数（含自身）
	SetPVEs(n int)

	// SetClusterMembers 记录 cluster 成员数
	SetClusterMembers(cluster, n int)

	// MessageSent 记录一条已发送消息
	MessageSent(kind string)

	// MessageReceived 记录一条已接收消息
	MessageReceived(kind string)

	// PVEEvicted 记录一次过期淘汰
	PVEEvicted()

	// InstanceReset 记录一次实例重置
	InstanceReset()
}

// NopMetrics 空实现
type NopMetrics struct{}

func (NopMetrics) SetState(int)               {}
func (NopMetrics) SetPVEs(int)                {}
func (NopMetrics) SetClusterMembers(_, _ int) {}
func (NopMetrics) MessageSent(string)         {}
func (NopMetrics) MessageReceived(string)     {}
func (NopMetrics) PVEEvicted()                {}
func (NopMetrics) InstanceReset()             {}

var _ PeerviewMetrics = NopMetrics{}
