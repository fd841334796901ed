package peerview

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-peerview/config"
	"github.com/dep2p/go-peerview/internal/core/identity"
	"github.com/dep2p/go-peerview/internal/core/metrics"
	pvcore "github.com/dep2p/go-peerview/internal/core/peerview"
	"github.com/dep2p/go-peerview/internal/core/rendezvous/roster"
	"github.com/dep2p/go-peerview/internal/core/scheduler"
	"github.com/dep2p/go-peerview/internal/core/transport/memory"
	"github.com/dep2p/go-peerview/internal/core/transport/quic"
	"github.com/dep2p/go-peerview/internal/debug/introspect"
	"github.com/dep2p/go-peerview/internal/discovery/advstore"
	"github.com/dep2p/go-peerview/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置、时钟、身份
//  2. 调度器、广告存储、租约表、指标
//  3. 传输（依赖身份与广告存储）
//  4. peerview 与自省服务
func buildFxApp(o *options, n *Node) (*fx.App, error) {
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Transport.Kind == config.TransportMemory && o.network == nil {
		return nil, fmt.Errorf("memory transport requires WithMemoryNetwork")
	}

	modules := []fx.Option{
		// 配置注入
		fx.Supply(cfg),
		fx.Provide(func() clock.Clock { return o.clock }),
		fx.Supply(identity.Config{KeyFile: cfg.Identity.KeyFile}),
		fx.Supply(scheduler.Config{Workers: cfg.Scheduler.Workers}),
		fx.Supply(cfg.Discovery.ToAdvStore()),
		fx.Supply(metrics.Config{Enabled: cfg.Metrics.Enabled, ListenAddr: cfg.Metrics.ListenAddr}),
		fx.Supply(introspect.ModuleConfig{Enabled: cfg.Debug.Introspect, Addr: cfg.Debug.IntrospectAddr}),
		fx.Supply(pvcore.ModuleConfig{
			Config:  cfg.Peerview.ToPeerview(),
			Seeds:   cfg.SeedDestinations(),
			Passive: cfg.Passive,
		}),

		identity.Module(),
		scheduler.Module(),
		advstore.Module(),
		roster.Module(),
		metrics.Module,
		transportModule(cfg.Transport, o.network),
		pvcore.Module(),
		introspect.Module(),

		fx.Populate(&n.id, &n.pv, &n.transport, &n.store, &n.roster, &n.sched, &n.registry),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	}
	modules = append(modules, o.fxOptions...)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// transportParams 传输依赖参数
type transportParams struct {
	fx.In

	LC        fx.Lifecycle
	Identity  *identity.Identity
	Discovery interfaces.Discovery
	Bandwidth *metrics.Bandwidth `optional:"true"`
}

// transportModule 按配置创建 QUIC 或进程内传输，并统计流量
func transportModule(cfg config.TransportConfig, network *memory.Network) fx.Option {
	return fx.Module("transport",
		fx.Provide(func(p transportParams) (interfaces.Transport, error) {
			var (
				tr  interfaces.Transport
				err error
			)
			switch cfg.Kind {
			case config.TransportMemory:
				tr, err = network.NewTransport(p.Identity.ID())
			default:
				tr, err = quic.New(cfg.ToQUIC(), p.Identity, p.Discovery)
			}
			if err != nil {
				return nil, err
			}
			p.LC.Append(fx.Hook{
				OnStop: func(context.Context) error { return tr.Close() },
			})
			return metrics.MeteredTransport(tr, p.Bandwidth), nil
		}),
	)
}
