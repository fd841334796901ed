package config

import (
	"errors"

	"github.com/dep2p/go-peerview/internal/core/rendezvous/roster"
	"github.com/dep2p/go-peerview/internal/core/scheduler"
	"github.com/dep2p/go-peerview/internal/debug/introspect"
)

// SchedulerConfig 任务调度配置
type SchedulerConfig struct {
	// Workers 并发执行任务的 worker 数
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultSchedulerConfig 返回默认调度配置
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Workers: scheduler.DefaultWorkers}
}

// Validate 验证调度配置
func (c SchedulerConfig) Validate() error {
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	return nil
}

// RendezvousConfig 客户端租约配置
type RendezvousConfig struct {
	// LeaseTTL 客户端租约时长
	LeaseTTL Duration `json:"lease_ttl" yaml:"lease_ttl"`
}

// DefaultRendezvousConfig 返回默认租约配置
func DefaultRendezvousConfig() RendezvousConfig {
	return RendezvousConfig{LeaseTTL: Duration(roster.DefaultLease)}
}

// Validate 验证租约配置
func (c RendezvousConfig) Validate() error {
	if c.LeaseTTL <= 0 {
		return errors.New("lease_ttl must be positive")
	}
	return nil
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否收集指标
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ListenAddr 指标 HTTP 监听地址，空表示不暴露
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.ListenAddr != "" && !c.Enabled {
		return errors.New("listen_addr set but metrics disabled")
	}
	return nil
}

// DebugConfig 本地诊断配置
type DebugConfig struct {
	// Introspect 是否启动自省 HTTP 服务
	Introspect bool `json:"introspect" yaml:"introspect"`

	// IntrospectAddr 自省服务监听地址，只应使用本地地址
	IntrospectAddr string `json:"introspect_addr" yaml:"introspect_addr"`
}

// DefaultDebugConfig 返回默认诊断配置
func DefaultDebugConfig() DebugConfig {
	return DebugConfig{IntrospectAddr: introspect.DefaultAddr}
}

// Validate 验证诊断配置
func (c DebugConfig) Validate() error {
	if c.Introspect && c.IntrospectAddr == "" {
		return errors.New("introspect_addr required when introspect is enabled")
	}
	return nil
}
