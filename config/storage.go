package config

import (
	"errors"
	"path/filepath"

	"github.com/dep2p/go-peerview/internal/discovery/advstore"
)

// DiscoveryConfig 广告存储配置
//
// 广告保存在 BadgerDB 中，数据目录结构：
//
//	${DataDir}/
//	└── adv.db/
type DiscoveryConfig struct {
	// DataDir 数据目录
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// InMemory 不落盘
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	SyncWrites     bool     `json:"sync_writes" yaml:"sync_writes"`
	GCInterval     Duration `json:"gc_interval" yaml:"gc_interval"`
	GCDiscardRatio float64  `json:"gc_discard_ratio" yaml:"gc_discard_ratio"`
}

// DefaultDiscoveryConfig 返回默认广告存储配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	d := advstore.DefaultConfig("")
	return DiscoveryConfig{
		DataDir:        "./data",
		GCInterval:     Duration(d.GCInterval),
		GCDiscardRatio: d.GCDiscardRatio,
	}
}

// Validate 验证广告存储配置
func (c DiscoveryConfig) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return errors.New("data_dir cannot be empty")
	}
	return c.ToAdvStore().Validate()
}

// DBPath 返回 BadgerDB 数据库路径
func (c DiscoveryConfig) DBPath() string {
	return filepath.Join(c.DataDir, "adv.db")
}

// ToAdvStore 转换为 advstore.Config
func (c DiscoveryConfig) ToAdvStore() advstore.Config {
	cfg := advstore.Config{
		InMemory:       c.InMemory,
		SyncWrites:     c.SyncWrites,
		GCInterval:     c.GCInterval.Duration(),
		GCDiscardRatio: c.GCDiscardRatio,
	}
	if !c.InMemory {
		cfg.Path = c.DBPath()
	}
	return cfg
}
