package introspect

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-peerview/internal/core/metrics"
	"github.com/dep2p/go-peerview/internal/core/peerview"
)

// ModuleConfig 模块配置
type ModuleConfig struct {
	// Enabled 是否启动自省服务
	Enabled bool

	// Addr 监听地址
	Addr string
}

// Params 自省服务依赖参数
type Params struct {
	fx.In

	LC        fx.Lifecycle
	Cfg       ModuleConfig `optional:"true"`
	Peerview  *peerview.Peerview
	Bandwidth *metrics.Bandwidth `optional:"true"`
}

// Module 返回自省服务的 Fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Invoke(register),
	)
}

func register(p Params) {
	if !p.Cfg.Enabled {
		return
	}

	cfg := Config{Addr: p.Cfg.Addr, View: p.Peerview}
	// nil 指针不能放进接口
	if p.Bandwidth != nil {
		cfg.Bandwidth = p.Bandwidth
	}
	srv := New(cfg)

	p.LC.Append(fx.Hook{
		OnStart: srv.Start,
		OnStop:  srv.Stop,
	})
}
