// Package main 提供 peerview 节点的命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dep2p/go-peerview"
	"github.com/dep2p/go-peerview/config"
	pvcore "github.com/dep2p/go-peerview/internal/core/peerview"
	"github.com/dep2p/go-peerview/internal/util/logger"
)

var log = logger.Logger("cmd")

// seedList 可重复的 -seed 参数
type seedList []string

func (s *seedList) String() string { return strings.Join(*s, ",") }

func (s *seedList) Set(v string) error {
	if v == "" {
		return fmt.Errorf("empty seed")
	}
	*s = append(*s, v)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
// 命令行参数用于运行时覆盖，长期配置写在配置文件中。
var (
	configFile   = flag.String("config", "", "配置文件路径（.json / .yaml）")
	listen       = flag.String("listen", "", "QUIC 监听地址，如 0.0.0.0:9700")
	announce     = flag.String("announce", "", "对外公布的地址，逗号分隔，如 203.0.113.7:9700")
	metricsAddr  = flag.String("metrics", "", "指标 HTTP 地址，如 127.0.0.1:9090")
	debugAddr    = flag.String("introspect", "", "自省 HTTP 地址，如 127.0.0.1:6060")
	passive      = flag.Bool("passive", false, "只接受邀请加入 peerview")
	autoCycle    = flag.Duration("auto-cycle", 0, "自动切换 rendezvous 角色的检查周期，0 表示关闭")
	identityFile = flag.String("identity", "", "身份私钥文件路径")
	dataDir      = flag.String("data-dir", "", "数据目录")
	showVersion  = flag.Bool("version", false, "显示版本信息")
	seeds        seedList
)

func init() {
	flag.Var(&seeds, "seed", "种子节点地址，可重复，如 quic://10.0.0.1:9700")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()
	if *showVersion {
		fmt.Println(peerview.VersionInfo())
		return nil
	}

	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("启动 peerview 节点", "version", peerview.Version, "commit", peerview.GitCommit)
	node, err := peerview.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	_ = node.Peerview().AddEventListener("cmd", func(ev pvcore.Event) {
		log.Info("peerview 事件", "type", ev.Type.String(), "peer", ev.PeerID.ShortString())
	})

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	fmt.Printf("节点 ID: %s\n", node.ID())
	for _, a := range node.Addrs() {
		fmt.Printf("监听地址: %s\n", a)
	}
	fmt.Println("节点已启动，按 Ctrl+C 退出")
	waitForSignal()

	fmt.Println("\n正在关闭节点...")
	return node.Stop(context.Background())
}

// buildOptions 构建选项
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（PEERVIEW_* 前缀）
//  3. 配置文件
//  4. 默认值
func buildOptions() ([]peerview.Option, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	}
	applyEnvOverrides(cfg)

	opts := []peerview.Option{peerview.WithConfig(cfg)}
	if *listen != "" {
		opts = append(opts, peerview.WithListenAddr(*listen))
	}
	if *announce != "" {
		opts = append(opts, peerview.WithAnnounceAddrs(splitList(*announce)...))
	}
	if *identityFile != "" {
		opts = append(opts, peerview.WithKeyFile(*identityFile))
	}
	if *dataDir != "" {
		opts = append(opts, peerview.WithDataDir(*dataDir))
	}
	if *metricsAddr != "" {
		opts = append(opts, peerview.WithMetricsAddr(*metricsAddr))
	}
	if *debugAddr != "" {
		opts = append(opts, peerview.WithIntrospect(*debugAddr))
	}
	if isFlagSet("passive") {
		opts = append(opts, peerview.WithPassive(*passive))
	}
	if *autoCycle > 0 {
		opts = append(opts, peerview.WithAutoCycle(*autoCycle))
	}
	if len(seeds) > 0 {
		opts = append(opts, peerview.WithSeeds(seeds...))
	}
	return opts, nil
}

// applyEnvOverrides 应用 PEERVIEW_* 环境变量
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("PEERVIEW_LISTEN"); v != "" {
		cfg.Transport.ListenAddr = v
	}
	if v := os.Getenv("PEERVIEW_ANNOUNCE"); v != "" {
		cfg.Transport.AnnounceAddrs = splitList(v)
	}
	if v := os.Getenv("PEERVIEW_DATA_DIR"); v != "" {
		cfg.Discovery.DataDir = v
	}
	if v := os.Getenv("PEERVIEW_KEY_FILE"); v != "" {
		cfg.Identity.KeyFile = v
	}
	if v := os.Getenv("PEERVIEW_SEEDS"); v != "" {
		for _, s := range splitList(v) {
			cfg.Seeds = append(cfg.Seeds, config.Seed{Address: s})
		}
	}
}

// splitList 拆分逗号分隔的列表，忽略空项
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}
