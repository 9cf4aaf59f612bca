package host

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/connmgr"
	"github.com/dep2p/go-nodehost/internal/core/discovery"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
)

// DialerInput 拨号器输入依赖
type DialerInput struct {
	fx.In

	Registry *capability.Registry
	Upgrader pkgif.Upgrader
	AddrBook pkgif.AddrBook
}

// ProvideDialer 提供连接管理器使用的拨号器
func ProvideDialer(input DialerInput) (connmgr.Dialer, error) {
	return NewDialer(input.Registry, input.Upgrader, input.AddrBook)
}

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config      *config.Config `optional:"true"`
	Identity    pkgif.Identity
	Registry    *capability.Registry
	Upgrader    pkgif.Upgrader
	Manager     *connmgr.Manager
	Coordinator *discovery.Coordinator
	AddrBook    pkgif.AddrBook
	EventBus    pkgif.EventBus
}

// ProvideHost 创建主机
func ProvideHost(input ModuleInput) (*Host, error) {
	cfg := config.DefaultTransportConfig()
	if input.Config != nil {
		cfg = input.Config.Transport
	}
	addrs, err := cfg.ParsedListenAddrs()
	if err != nil {
		return nil, err
	}

	return New(Params{
		Identity:    input.Identity,
		Registry:    input.Registry,
		Upgrader:    input.Upgrader,
		Manager:     input.Manager,
		Coordinator: input.Coordinator,
		AddrBook:    input.AddrBook,
		EventBus:    input.EventBus,
		ListenAddrs: addrs,
	})
}

// registerLifecycle 主机的启动与停止驱动全部核心组件
func registerLifecycle(lc fx.Lifecycle, h *Host) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return h.Start(ctx)
		},
		OnStop: func(context.Context) error {
			return h.Stop()
		},
	})
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("host",
		fx.Provide(ProvideDialer, ProvideHost),
		fx.Invoke(registerLifecycle),
	)
}
