package advstore

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-peerview/pkg/interfaces"
)

// Params 存储依赖参数
type Params struct {
	fx.In

	LC    fx.Lifecycle
	Cfg   Config
	Clock clock.Clock `optional:"true"`
}

// Result 存储提供的组件
type Result struct {
	fx.Out

	Store     *Store
	Discovery interfaces.Discovery
}

// Module 返回广告存储的 Fx 模块
func Module() fx.Option {
	return fx.Module("advstore",
		fx.Provide(NewFromParams),
	)
}

// NewFromParams 打开存储，停止时关闭
func NewFromParams(p Params) (Result, error) {
	s, err := Open(p.Cfg, p.Clock)
	if err != nil {
		return Result{}, err
	}
	p.LC.Append(fx.Hook{
		OnStop: func(context.Context) error { return s.Close() },
	})
	return Result{Store: s, Discovery: s}, nil
}
