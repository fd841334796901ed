package peerview

import (
	"errors"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-peerview/config"
	"github.com/dep2p/go-peerview/internal/core/transport/memory"
)

// Option 节点配置选项
type Option func(*options) error

// options 内部选项
type options struct {
	config    *config.Config
	clock     clock.Clock
	network   *memory.Network
	fxOptions []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig(), clock: clock.New()}
}

// WithConfig 使用完整配置，后续选项在其基础上修改
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		c := *cfg
		c.Seeds = slices.Clone(cfg.Seeds)
		o.config = &c
		return nil
	}
}

// WithConfigFile 从 JSON 或 YAML 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithListenAddr 设置 QUIC 监听地址
func WithListenAddr(addr string) Option {
	return func(o *options) error {
		o.config.Transport.ListenAddr = addr
		return nil
	}
}

// WithAnnounceAddrs 设置对外公布的 host:port，覆盖由监听地址推导的地址
func WithAnnounceAddrs(addrs ...string) Option {
	return func(o *options) error {
		o.config.Transport.AnnounceAddrs = append([]string(nil), addrs...)
		return nil
	}
}

// WithKeyFile 设置身份私钥文件
func WithKeyFile(path string) Option {
	return func(o *options) error {
		o.config.Identity.KeyFile = path
		return nil
	}
}

// WithSeeds 追加种子节点地址
func WithSeeds(addrs ...string) Option {
	return func(o *options) error {
		for _, a := range addrs {
			if a == "" {
				return errors.New("empty seed address")
			}
			o.config.Seeds = append(o.config.Seeds, config.Seed{Address: a})
		}
		return nil
	}
}

// WithPassive 设置是否只接受邀请加入
func WithPassive(passive bool) Option {
	return func(o *options) error {
		o.config.Passive = passive
		return nil
	}
}

// WithAutoCycle 启用按负载自动切换 rendezvous 角色，interval 为检查周期
func WithAutoCycle(interval time.Duration) Option {
	return func(o *options) error {
		o.config.Peerview.AutoCycle = config.Duration(interval)
		return nil
	}
}

// WithMetricsAddr 设置指标 HTTP 地址
func WithMetricsAddr(addr string) Option {
	return func(o *options) error {
		o.config.Metrics.Enabled = true
		o.config.Metrics.ListenAddr = addr
		return nil
	}
}

// WithIntrospect 在 addr 上启动本地自省服务
func WithIntrospect(addr string) Option {
	return func(o *options) error {
		o.config.Debug.Introspect = true
		o.config.Debug.IntrospectAddr = addr
		return nil
	}
}

// WithDataDir 设置广告存储的数据目录
func WithDataDir(dir string) Option {
	return func(o *options) error {
		if dir == "" {
			return errors.New("empty data dir")
		}
		o.config.Discovery.DataDir = dir
		return nil
	}
}

// WithInMemoryStore 广告存储不落盘
func WithInMemoryStore() Option {
	return func(o *options) error {
		o.config.Discovery.InMemory = true
		return nil
	}
}

// WithMemoryNetwork 使用进程内传输，用于测试与仿真
func WithMemoryNetwork(n *memory.Network) Option {
	return func(o *options) error {
		if n == nil {
			return errors.New("memory network is nil")
		}
		o.network = n
		o.config.Transport.Kind = config.TransportMemory
		return nil
	}
}

// WithClock 替换时钟
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return errors.New("clock is nil")
		}
		o.clock = clk
		return nil
	}
}

// WithFxOption 追加自定义 Fx 选项
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
