package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

var (
	// output 全局输出目标，默认 stderr
	output   io.Writer = os.Stderr
	outputMu sync.RWMutex
)

// dynamicWriter 每次写入时查找当前的全局输出目标
type dynamicWriter struct{}

func (dynamicWriter) Write(p []byte) (int, error) {
	outputMu.RLock()
	w := output
	outputMu.RUnlock()
	return w.Write(p)
}

// handlerCore 同一子系统所有派生 Handler 共享的状态
type handlerCore struct {
	subsystem string
	level     slog.LevelVar
	gen       atomic.Uint64

	mu   sync.RWMutex
	base slog.Handler
}

func newCore(subsystem string, level slog.Level, format Format, addSource bool) *handlerCore {
	c := &handlerCore{subsystem: subsystem}
	c.level.Set(level)
	c.base = buildBase(subsystem, &c.level, format, addSource)
	return c
}

func buildBase(subsystem string, level slog.Leveler, format Format, addSource bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelName(lvl))
				}
			}
			return a
		},
	}

	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(dynamicWriter{}, opts)
	} else {
		h = slog.NewTextHandler(dynamicWriter{}, opts)
	}
	return h.WithAttrs([]slog.Attr{slog.String("subsystem", subsystem)})
}

// subsystemHandler 支持运行时调整级别与格式的 slog.Handler
type subsystemHandler struct {
	core *handlerCore
	ops  []func(slog.Handler) slog.Handler

	mu     sync.Mutex
	gen    uint64
	cached slog.Handler
}

func newHandler(subsystem string, cfg *Config) *subsystemHandler {
	return &subsystemHandler{
		core: newCore(subsystem, cfg.LevelFor(subsystem), cfg.Format, cfg.AddSource),
		gen:  ^uint64(0),
	}
}

// Enabled 检查是否启用指定级别
func (h *subsystemHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.core.level.Level()
}

// Handle 处理日志记录
func (h *subsystemHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner().Handle(ctx, r)
}

// WithAttrs 添加属性
func (h *subsystemHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(in slog.Handler) slog.Handler { return in.WithAttrs(attrs) })
}

// WithGroup 添加组
func (h *subsystemHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(in slog.Handler) slog.Handler { return in.WithGroup(name) })
}

func (h *subsystemHandler) derive(op func(slog.Handler) slog.Handler) *subsystemHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &subsystemHandler{core: h.core, ops: append(ops, op), gen: ^uint64(0)}
}

// inner 返回当前代的底层 Handler，配置变化后重建
func (h *subsystemHandler) inner() slog.Handler {
	gen := h.core.gen.Load()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cached != nil && h.gen == gen {
		return h.cached
	}

	h.core.mu.RLock()
	in := h.core.base
	h.core.mu.RUnlock()
	for _, op := range h.ops {
		in = op(in)
	}
	h.cached, h.gen = in, gen
	return in
}

func (h *subsystemHandler) setLevel(level slog.Level) {
	h.core.level.Set(level)
}

func (h *subsystemHandler) reconfigure(level slog.Level, format Format, addSource bool) {
	h.core.level.Set(level)
	h.core.mu.Lock()
	h.core.base = buildBase(h.core.subsystem, &h.core.level, format, addSource)
	h.core.mu.Unlock()
	h.core.gen.Add(1)
}

func levelName(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

// discardHandler 丢弃所有日志
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
