// Package muxer 按配置装配多路复用器并注册到能力注册表
package muxer

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/muxer/hashicorp"
	"github.com/dep2p/go-nodehost/internal/core/muxer/yamux"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Build 按名称创建多路复用器
func Build(name string) (pkgif.StreamMuxer, error) {
	switch name {
	case config.MuxerYamux:
		return yamux.New(), nil
	case config.MuxerHashicorpYamux:
		return hashicorp.New(), nil
	default:
		return nil, fmt.Errorf("%w: unknown muxer %q", types.ErrConfiguration, name)
	}
}

// ProvideEntries 按偏好顺序创建多路复用器条目
func ProvideEntries(input ModuleInput) ([]capability.Entry, error) {
	cfg := config.DefaultMuxerConfig()
	if input.Config != nil {
		cfg = input.Config.Muxer
	}

	entries := make([]capability.Entry, 0, len(cfg.Preference))
	for i, name := range cfg.Preference {
		m, err := Build(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, capability.Entry{
			Kind:       types.KindMuxer,
			Priority:   i,
			Descriptor: capability.Descriptor{ID: m.ID(), Impl: m},
		})
	}
	return entries, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("muxer",
		fx.Provide(capability.AsEntries(ProvideEntries)),
	)
}
