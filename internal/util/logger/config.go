package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Format 日志输出格式
type Format int

const (
	// FormatText 文本格式（默认）
	FormatText Format = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// 环境变量名
const (
	EnvLevel     = "PEERVIEW_LOG_LEVEL"
	EnvFormat    = "PEERVIEW_LOG_FORMAT"
	EnvAddSource = "PEERVIEW_LOG_ADD_SOURCE"
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// SubsystemLevels 各子系统的日志级别
	SubsystemLevels map[string]slog.Level

	// Format 输出格式
	Format Format

	// AddSource 是否附带源码位置
	AddSource bool
}

// LevelFor 返回子系统的日志级别
//
// 子系统名按 "/" 分层，未单独配置时逐级向上查找，
// 例如 "peerview/handler" 未配置时使用 "peerview" 的级别。
func (c *Config) LevelFor(subsystem string) slog.Level {
	for name := subsystem; name != ""; {
		if level, ok := c.SubsystemLevels[name]; ok {
			return level
		}
		idx := strings.LastIndex(name, "/")
		if idx < 0 {
			break
		}
		name = name[:idx]
	}
	return c.DefaultLevel
}

var (
	activeConfig *Config
	configMu     sync.RWMutex
)

// CurrentConfig 返回当前生效的配置
//
// 首次调用时从环境变量解析。
func CurrentConfig() *Config {
	configMu.RLock()
	cfg := activeConfig
	configMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	configMu.Lock()
	defer configMu.Unlock()
	if activeConfig == nil {
		activeConfig = ConfigFromEnv()
	}
	return activeConfig
}

// ConfigFromEnv 从环境变量解析配置
//
//   - PEERVIEW_LOG_LEVEL: 子系统=级别,...,默认级别
//     示例: peerview/handler=debug,transport=warn,info
//   - PEERVIEW_LOG_FORMAT: text 或 json
//   - PEERVIEW_LOG_ADD_SOURCE: true 或 false
func ConfigFromEnv() *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}

	if s := os.Getenv(EnvLevel); s != "" {
		ParseLevels(cfg, s)
	}
	if s := os.Getenv(EnvFormat); s != "" {
		cfg.Format = ParseFormat(s)
	}
	if s := os.Getenv(EnvAddSource); s != "" {
		cfg.AddSource = s == "true" || s == "1"
	}
	return cfg
}

// ParseLevels 解析级别配置字符串并写入 cfg
func ParseLevels(cfg *Config, s string) {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, lvl, ok := strings.Cut(part, "="); ok {
			if level, ok := ParseLevel(lvl); ok {
				cfg.SubsystemLevels[strings.TrimSpace(name)] = level
			}
			continue
		}
		if level, ok := ParseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ParseFormat 解析输出格式，未知值按文本处理
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Apply 替换当前配置并刷新所有已创建的子系统 Logger
func Apply(cfg *Config) {
	if cfg.SubsystemLevels == nil {
		cfg.SubsystemLevels = make(map[string]slog.Level)
	}
	configMu.Lock()
	activeConfig = cfg
	configMu.Unlock()

	handlers.Range(func(key, value any) bool {
		h := value.(*subsystemHandler)
		h.reconfigure(cfg.LevelFor(key.(string)), cfg.Format, cfg.AddSource)
		return true
	})
}

// resetConfig 重置配置（仅用于测试）
func resetConfig() {
	configMu.Lock()
	activeConfig = nil
	configMu.Unlock()
}
