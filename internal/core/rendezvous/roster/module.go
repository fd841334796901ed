package roster

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-peerview/pkg/interfaces"
)

// Params 租约表依赖参数
type Params struct {
	fx.In

	Clock clock.Clock `optional:"true"`
}

// Result 租约表提供的组件
type Result struct {
	fx.Out

	Roster    *Roster
	Interface interfaces.Roster
}

// Module 返回客户端租约表的 Fx 模块
func Module() fx.Option {
	return fx.Module("roster",
		fx.Provide(NewFromParams),
	)
}

// NewFromParams 创建租约表
func NewFromParams(p Params) Result {
	r := New(p.Clock)
	return Result{Roster: r, Interface: r}
}
