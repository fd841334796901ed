package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-peerview/internal/util/logger"
	"github.com/dep2p/go-peerview/pkg/interfaces"
)

var log = logger.Logger("metrics")

// Config 指标配置
type Config struct {
	// Enabled 是否启用指标收集
	Enabled bool

	// ListenAddr 指标 HTTP 地址，空表示不监听
	ListenAddr string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Enabled: true}
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	Cfg   Config      `optional:"true"`
	Clock clock.Clock `optional:"true"`
}

// Result Metrics 提供的组件
type Result struct {
	fx.Out

	Registry  *prometheus.Registry
	Peerview  interfaces.PeerviewMetrics
	Bandwidth *Bandwidth
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewFromParams),
	fx.Invoke(registerServer),
)

// NewFromParams 从参数创建指标组件
//
// 未启用时提供空 Registry 与 NopMetrics，Bandwidth 为 nil。
func NewFromParams(p Params) Result {
	reg := prometheus.NewRegistry()
	if !p.Cfg.Enabled {
		return Result{Registry: reg, Peerview: interfaces.NopMetrics{}}
	}
	bw := NewBandwidth(p.Clock)
	reg.MustRegister(bw)
	return Result{Registry: reg, Peerview: New(reg), Bandwidth: bw}
}

// ServerParams 指标 HTTP 服务依赖参数
type ServerParams struct {
	fx.In

	LC       fx.Lifecycle
	Cfg      Config `optional:"true"`
	Registry *prometheus.Registry
}

// registerServer 配置了监听地址时在 /metrics 暴露指标
func registerServer(p ServerParams) {
	if !p.Cfg.Enabled || p.Cfg.ListenAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(p.Registry))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", p.Cfg.ListenAddr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Warn("指标服务退出", "err", err)
				}
			}()
			log.Info("指标服务已监听", "addr", ln.Addr().String())
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
