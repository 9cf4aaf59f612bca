// Package transport 按配置装配传输层并注册到能力注册表
package transport

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/transport/quic"
	"github.com/dep2p/go-nodehost/internal/core/transport/tcp"
	"github.com/dep2p/go-nodehost/internal/core/transport/websocket"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.transport")

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
	LC     fx.Lifecycle
}

// Build 按配置创建启用的传输层，顺序为 TCP、WebSocket、QUIC
func Build(cfg config.TransportConfig) ([]pkgif.Transport, error) {
	timeout := cfg.DialTimeout.Duration()
	var out []pkgif.Transport
	if cfg.EnableTCP {
		out = append(out, tcp.New(timeout))
	}
	if cfg.EnableWebSocket {
		out = append(out, websocket.New(timeout))
	}
	if cfg.EnableQUIC {
		q, err := quic.New(timeout)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// ProvideEntries 创建传输层并作为能力条目提交
func ProvideEntries(input ModuleInput) ([]capability.Entry, error) {
	cfg := config.DefaultTransportConfig()
	if input.Config != nil {
		cfg = input.Config.Transport
	}

	transports, err := Build(cfg)
	if err != nil {
		return nil, err
	}

	entries := make([]capability.Entry, 0, len(transports))
	for i, t := range transports {
		entries = append(entries, capability.Entry{
			Kind:       types.KindTransport,
			Priority:   i,
			Descriptor: capability.Descriptor{ID: t.ID(), Impl: t},
		})
	}

	input.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			var err error
			for _, t := range transports {
				err = multierr.Append(err, t.Close())
			}
			return err
		},
	})
	log.Debug("传输层已装配", "count", len(transports))
	return entries, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(capability.AsEntries(ProvideEntries)),
	)
}
