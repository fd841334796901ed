package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-peerview/internal/util/logger"
	"github.com/dep2p/go-peerview/pkg/types"
)

var log = logger.Logger("identity")

// Config 身份配置
type Config struct {
	// KeyFile 私钥文件路径，为空时生成临时身份
	KeyFile string
}

// Params 身份模块依赖参数
type Params struct {
	fx.In

	Cfg Config `optional:"true"`
}

// Result 身份模块提供的组件
type Result struct {
	fx.Out

	Identity *Identity
	LocalID  types.PeerID
}

// Module 返回身份的 Fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(NewFromParams),
	)
}

// NewFromParams 按配置加载或生成身份
func NewFromParams(p Params) (Result, error) {
	id, err := LoadOrGenerate(p.Cfg.KeyFile)
	if err != nil {
		return Result{}, err
	}
	log.Info("节点身份已就绪", "peer", id.ID().ShortString(), "persistent", p.Cfg.KeyFile != "")
	return Result{Identity: id, LocalID: id.ID()}, nil
}
