package peerstore

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/storage"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
	LC     fx.Lifecycle
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	AddrBook pkgif.AddrBook
	Concrete *AddrBook
}

// ProvideAddrBook 创建地址簿，配置了 Path 时打开 badger 并在停止时关闭
func ProvideAddrBook(input ModuleInput) (ModuleOutput, error) {
	cfg := config.DefaultPeerstoreConfig()
	if input.Config != nil {
		cfg = input.Config.Peerstore
	}

	var opts []Option
	if cfg.Path != "" {
		engine, err := storage.Open(storage.DefaultConfig(cfg.Path))
		if err != nil {
			return ModuleOutput{}, err
		}
		input.LC.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return engine.Close()
			},
		})
		opts = append(opts, WithStore(storage.NewStore(engine, recordPrefix)))
	}

	book, err := New(cfg.RetainDisconnected, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{AddrBook: book, Concrete: book}, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("peerstore",
		fx.Provide(ProvideAddrBook),
	)
}
