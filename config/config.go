// Package config 提供 peerview 节点的统一配置
//
// 主 Config 嵌入各组件的子配置，每个子配置在独立文件中定义，
// 并提供到组件自身配置类型的转换。支持从 JSON 或 YAML 文件加载。
//
//	cfg, err := config.Load("peerview.yaml")
//	if err != nil {
//	    return err
//	}
//	pvCfg := cfg.Peerview.ToPeerview()
package config

import (
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

// Seed 启动时探测的种子节点
//
// Address 与 PeerID 至少填一个，Address 优先。
type Seed struct {
	// Address 端点地址，如 "quic://1.2.3.4:9700"
	Address string `json:"address,omitempty" yaml:"address,omitempty"`

	// PeerID 节点 ID，需要能通过广告存储解析
	PeerID string `json:"peer_id,omitempty" yaml:"peer_id,omitempty"`
}

// Destination 返回种子的发送目标
func (s Seed) Destination() interfaces.Destination {
	if s.Address != "" {
		return interfaces.ToAddress(types.EndpointAddress(s.Address))
	}
	return interfaces.ToPeer(types.PeerID(s.PeerID))
}

// Config peerview 节点的完整配置
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity" yaml:"identity"`

	// Transport 传输配置
	Transport TransportConfig `json:"transport" yaml:"transport"`

	// Peerview 协议参数
	Peerview PeerviewConfig `json:"peerview" yaml:"peerview"`

	// Discovery 广告存储配置
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`

	// Scheduler 任务调度配置
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`

	// Rendezvous 客户端租约配置
	Rendezvous RendezvousConfig `json:"rendezvous" yaml:"rendezvous"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Debug 本地诊断配置
	Debug DebugConfig `json:"debug" yaml:"debug"`

	// Seeds 种子节点
	Seeds []Seed `json:"seeds,omitempty" yaml:"seeds,omitempty"`

	// Passive 只接受邀请加入 peerview
	Passive bool `json:"passive" yaml:"passive"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:   DefaultIdentityConfig(),
		Transport:  DefaultTransportConfig(),
		Peerview:   DefaultPeerviewConfig(),
		Discovery:  DefaultDiscoveryConfig(),
		Scheduler:  DefaultSchedulerConfig(),
		Rendezvous: DefaultRendezvousConfig(),
		Metrics:    DefaultMetricsConfig(),
		Debug:      DefaultDebugConfig(),
	}
}

// SeedDestinations 返回全部种子的发送目标
func (c *Config) SeedDestinations() []interfaces.Destination {
	out := make([]interfaces.Destination, 0, len(c.Seeds))
	for _, s := range c.Seeds {
		out = append(out, s.Destination())
	}
	return out
}
