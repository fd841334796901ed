package config

import (
	"fmt"

	"github.com/dep2p/go-peerview/internal/core/transport/quic"
)

// 传输类型
const (
	TransportQUIC   = "quic"
	TransportMemory = "memory"
)

// TransportConfig 传输配置
type TransportConfig struct {
	// Kind 传输类型："quic" 或 "memory"（仅测试）
	Kind string `json:"kind" yaml:"kind"`

	// ListenAddr UDP 监听地址
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`

	// AnnounceAddrs 对外公布的 host:port，为空时由监听地址推导
	AnnounceAddrs []string `json:"announce_addrs,omitempty" yaml:"announce_addrs,omitempty"`

	IdleTimeout Duration `json:"idle_timeout" yaml:"idle_timeout"`
	KeepAlive   Duration `json:"keep_alive" yaml:"keep_alive"`
	ReadTimeout Duration `json:"read_timeout" yaml:"read_timeout"`

	// AddrCacheSize 学到的节点地址缓存条目数
	AddrCacheSize int `json:"addr_cache_size" yaml:"addr_cache_size"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	q := quic.DefaultConfig()
	return TransportConfig{
		Kind:          TransportQUIC,
		ListenAddr:    q.ListenAddr,
		IdleTimeout:   Duration(q.IdleTimeout),
		KeepAlive:     Duration(q.KeepAlive),
		ReadTimeout:   Duration(q.ReadTimeout),
		AddrCacheSize: q.AddrCacheSize,
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	switch c.Kind {
	case TransportQUIC:
		return c.ToQUIC().Validate()
	case TransportMemory:
		return nil
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
}

// ToQUIC 转换为 QUIC 传输配置
func (c TransportConfig) ToQUIC() quic.Config {
	return quic.Config{
		ListenAddr:    c.ListenAddr,
		AnnounceAddrs: c.AnnounceAddrs,
		IdleTimeout:   c.IdleTimeout.Duration(),
		KeepAlive:     c.KeepAlive.Duration(),
		ReadTimeout:   c.ReadTimeout.Duration(),
		AddrCacheSize: c.AddrCacheSize,
	}
}
