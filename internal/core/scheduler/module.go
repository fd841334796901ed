package scheduler

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-peerview/pkg/interfaces"
)

// Config 调度器配置
type Config struct {
	// Workers 并发数，<= 0 时使用 DefaultWorkers
	Workers int
}

// Params 调度器依赖参数
type Params struct {
	fx.In

	LC    fx.Lifecycle
	Cfg   Config      `optional:"true"`
	Clock clock.Clock `optional:"true"`
}

// Result 调度器提供的组件
type Result struct {
	fx.Out

	Scheduler *Scheduler
	Interface interfaces.Scheduler
}

// Module 返回调度器的 Fx 模块
func Module() fx.Option {
	return fx.Module("scheduler",
		fx.Provide(NewFromParams),
	)
}

// NewFromParams 创建调度器，停止时关闭
func NewFromParams(p Params) Result {
	s := New(p.Cfg.Workers, p.Clock)
	p.LC.Append(fx.Hook{
		OnStop: func(context.Context) error { return s.Close() },
	})
	return Result{Scheduler: s, Interface: s}
}
