// Package logger 提供 peerview 的分子系统日志
//
// 基于标准库 log/slog：
//   - 每个子系统一个 Logger，名称按 "/" 分层（如 "peerview/handler"）
//   - 级别与格式来自环境变量（PEERVIEW_LOG_LEVEL, PEERVIEW_LOG_FORMAT）
//     或配置文件（Apply）
//   - 运行时可调整级别、切换输出目标
//
// 使用示例:
//
//	var log = logger.Logger("peerview")
//
//	log.Info("加入 peerview 实例", "mask", mask)
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	loggers  sync.Map // map[string]*slog.Logger
	handlers sync.Map // map[string]*subsystemHandler
)

// Logger 返回指定子系统的 Logger
//
// 同一子系统多次调用返回同一实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	h := newHandler(subsystem, CurrentConfig())
	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(h))
	if !loaded {
		handlers.Store(subsystem, h)
	}
	return actual.(*slog.Logger)
}

// SetLevel 调整单个子系统的级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).setLevel(level)
	}
}

// SetGlobalLevel 调整所有已创建子系统的级别
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).setLevel(level)
		return true
	})
}

// SetOutput 切换全局输出目标，对已创建的 Logger 同样生效
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// Discard 返回丢弃所有日志的 Logger，用于测试
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}
