package metrics

import "go.uber.org/fx"

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(New),
	)
}
