package introspect

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/host"
	"github.com/dep2p/go-nodehost/internal/core/metrics"
)

// ModuleInput 模块输入
type ModuleInput struct {
	fx.In

	Config  *config.Config `optional:"true"`
	Host    *host.Host
	Metrics *metrics.Metrics `optional:"true"`
	LC      fx.Lifecycle
}

// ProvideServer 提供诊断服务，未启用时返回 nil
//
// 服务在主机之后启动、之前停止。
func ProvideServer(in ModuleInput) *Server {
	cfg := config.DefaultDiagnosticsConfig()
	if in.Config != nil {
		cfg = in.Config.Diagnostics
	}
	if !cfg.Enabled {
		return nil
	}

	srvCfg := Config{
		Addr:            cfg.ListenAddr,
		ShutdownTimeout: cfg.ShutdownTimeout.Duration(),
	}
	if in.Metrics != nil {
		srvCfg.Gatherer = in.Metrics.Registry()
	}
	s := New(srvCfg, in.Host)
	in.LC.Append(fx.Hook{
		OnStart: s.Start,
		OnStop: func(context.Context) error {
			return s.Stop()
		},
	})
	return s
}

// Module 返回 introspect fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(ProvideServer),
		fx.Invoke(func(*Server) {}),
	)
}
