// Package security 按配置装配安全传输并注册到能力注册表
//
// 配置中的偏好顺序即协商优先级。
package security

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/security/noise"
	"github.com/dep2p/go-nodehost/internal/core/security/tls"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config   *config.Config `optional:"true"`
	Identity pkgif.Identity
}

// Build 按名称创建安全传输
func Build(name string, id pkgif.Identity) (pkgif.SecureTransport, error) {
	switch name {
	case config.SecurityNoise:
		return noise.New(id)
	case config.SecurityTLS:
		return tls.New(id)
	default:
		return nil, fmt.Errorf("%w: unknown security %q", types.ErrConfiguration, name)
	}
}

// ProvideEntries 按偏好顺序创建安全传输条目
func ProvideEntries(input ModuleInput) ([]capability.Entry, error) {
	cfg := config.DefaultSecurityConfig()
	if input.Config != nil {
		cfg = input.Config.Security
	}

	entries := make([]capability.Entry, 0, len(cfg.Preference))
	for i, name := range cfg.Preference {
		st, err := Build(name, input.Identity)
		if err != nil {
			return nil, err
		}
		entries = append(entries, capability.Entry{
			Kind:       types.KindSecurity,
			Priority:   i,
			Descriptor: capability.Descriptor{ID: st.ID(), Impl: st},
		})
	}
	return entries, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("security",
		fx.Provide(capability.AsEntries(ProvideEntries)),
	)
}
