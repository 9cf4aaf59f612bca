package upgrader

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/metrics"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config   *config.Config `optional:"true"`
	Identity pkgif.Identity
	Registry *capability.Registry
	AddrBook pkgif.AddrBook   `optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Upgrader pkgif.Upgrader
	Concrete *Upgrader
}

// ProvideUpgrader 创建升级器
func ProvideUpgrader(input ModuleInput) (ModuleOutput, error) {
	cfg := config.DefaultSecurityConfig()
	if input.Config != nil {
		cfg = input.Config.Security
	}

	u, err := New(input.Identity, input.Registry,
		WithAddrBook(input.AddrBook),
		WithMetrics(input.Metrics),
		WithHandshakeTimeout(cfg.HandshakeTimeout.Duration()),
	)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Upgrader: u, Concrete: u}, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("upgrader",
		fx.Provide(ProvideUpgrader),
	)
}
