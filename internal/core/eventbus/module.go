package eventbus

import (
	"context"

	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
)

// Result 模块输出
type Result struct {
	fx.Out

	EventBus pkgif.EventBus
}

// ProvideEventBus 提供 EventBus，停止时关闭全部订阅
func ProvideEventBus(lc fx.Lifecycle) Result {
	bus := NewBus()
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return bus.Close()
		},
	})
	return Result{EventBus: bus}
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideEventBus),
	)
}
