package connmgr

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/metrics"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config   *config.Config `optional:"true"`
	Identity pkgif.Identity
	Dialer   Dialer
	AddrBook pkgif.AddrBook
	Metrics  *metrics.Metrics `optional:"true"`
}

// ProvideManager 创建连接管理器
//
// 启动与关闭由节点主机按顺序驱动，这里不注册生命周期钩子。
func ProvideManager(input ModuleInput) (*Manager, error) {
	cfg := config.DefaultConnManagerConfig()
	if input.Config != nil {
		cfg = input.Config.ConnMgr
	}
	return New(cfg, input.Identity.PeerID(), input.Dialer, input.AddrBook, WithMetrics(input.Metrics))
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("connmgr",
		fx.Provide(ProvideManager),
	)
}
