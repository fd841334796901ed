package peerview

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

// ModuleConfig peerview 模块配置
type ModuleConfig struct {
	Config Config
	Seeds  []interfaces.Destination

	// Passive 启动后停留在 Passive，只接受邀请
	Passive bool
}

// Params peerview 依赖参数
type Params struct {
	fx.In

	LC        fx.Lifecycle
	Cfg       ModuleConfig
	LocalID   types.PeerID
	Transport interfaces.Transport
	Scheduler interfaces.Scheduler

	Discovery interfaces.Discovery      `optional:"true"`
	Roster    interfaces.Roster         `optional:"true"`
	Metrics   interfaces.PeerviewMetrics `optional:"true"`
	Clock     clock.Clock               `optional:"true"`
}

// Module 返回 peerview 的 Fx 模块
func Module() fx.Option {
	return fx.Module("peerview",
		fx.Provide(NewFromParams),
	)
}

// NewFromParams 创建 peerview 并注册生命周期钩子
//
// 启动时进入 Passive，非被动模式下随即开始定位。
func NewFromParams(p Params) (*Peerview, error) {
	pv, err := New(p.Cfg.Config, Deps{
		LocalID:   p.LocalID,
		Transport: p.Transport,
		Scheduler: p.Scheduler,
		Discovery: p.Discovery,
		Roster:    p.Roster,
		Metrics:   p.Metrics,
		Clock:     p.Clock,
		Seeds:     p.Cfg.Seeds,
	})
	if err != nil {
		return nil, err
	}

	p.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pv.Start(ctx); err != nil {
				return err
			}
			if p.Cfg.Passive {
				return nil
			}
			return pv.SetActive(true)
		},
		OnStop: pv.Stop,
	})
	return pv, nil
}
