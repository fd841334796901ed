package advstore

import (
	"errors"
	"time"
)

// Config 存储配置
type Config struct {
	// Path 数据目录，InMemory 为 true 时忽略
	Path string

	// InMemory 仅在内存中保存（测试用）
	InMemory bool

	// SyncWrites 每次写入后同步到磁盘
	SyncWrites bool

	// GCInterval 值日志 GC 间隔，0 表示不运行 GC
	GCInterval time.Duration

	// GCDiscardRatio 值日志文件可回收比例阈值
	GCDiscardRatio float64
}

// DefaultConfig 返回默认配置
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig 返回内存模式配置
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Validate 校验配置
func (c Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("advstore: path is required")
	}
	if c.GCInterval < 0 {
		return errors.New("advstore: negative gc interval")
	}
	if c.GCInterval > 0 && (c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1) {
		return errors.New("advstore: gc discard ratio must be in (0, 1)")
	}
	return nil
}
