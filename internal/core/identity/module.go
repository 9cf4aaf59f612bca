package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/config"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`

	// Preset 直接注入的身份（WithIdentity 场景），优先于密钥文件
	Preset *Identity `name:"preset_identity" optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Identity pkgif.Identity
	Concrete *Identity
}

// ProvideIdentity 提供本节点身份
//
// 身份是启动顺序中的第一个组件，失败时 fx 启动失败。
func ProvideIdentity(input ModuleInput) (ModuleOutput, error) {
	if input.Preset != nil {
		return ModuleOutput{Identity: input.Preset, Concrete: input.Preset}, nil
	}

	path := ""
	if input.Config != nil {
		path = input.Config.Identity.KeyFile
	}
	id, err := LoadOrCreate(path)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Identity: id, Concrete: id}, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideIdentity),
	)
}
