package nodehost

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/connmgr"
	"github.com/dep2p/go-nodehost/internal/core/discovery"
	"github.com/dep2p/go-nodehost/internal/core/eventbus"
	"github.com/dep2p/go-nodehost/internal/core/host"
	"github.com/dep2p/go-nodehost/internal/core/identity"
	"github.com/dep2p/go-nodehost/internal/core/introspect"
	"github.com/dep2p/go-nodehost/internal/core/metrics"
	"github.com/dep2p/go-nodehost/internal/core/muxer"
	"github.com/dep2p/go-nodehost/internal/core/peerstore"
	"github.com/dep2p/go-nodehost/internal/core/security"
	"github.com/dep2p/go-nodehost/internal/core/transport"
	"github.com/dep2p/go-nodehost/internal/core/upgrader"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 构造顺序由依赖决定：
//  1. 身份、事件总线、指标、地址簿
//  2. 能力模块（传输、安全、多路复用、发现机制）提交条目，注册表收集
//  3. 升级器、连接管理器、发现协调器
//  4. 主机：唯一注册生命周期钩子的核心组件，按固定顺序启动和停止上面的组件
//  5. 诊断服务（可选），在主机之后启动
func buildFxApp(cfg *nodeConfig, node *Node) (*fx.App, error) {
	if err := cfg.config.Validate(); err != nil {
		return nil, err
	}
	if err := logger.Apply(cfg.config.Log.Level, cfg.config.Log.Format); err != nil {
		return nil, fmt.Errorf("apply log config: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(cfg.config),

		identity.Module(),
		eventbus.Module(),
		metrics.Module(),
		peerstore.Module(),

		// 能力模块
		capability.Module(),
		transport.Module(),
		security.Module(),
		muxer.Module(),
		discovery.Module(),

		upgrader.Module(),
		connmgr.Module(),
		host.Module(),
	}

	if cfg.identity != nil {
		modules = append(modules, fx.Supply(
			fx.Annotated{Name: "preset_identity", Target: cfg.identity},
		))
	}

	if cfg.config.Diagnostics.Enabled {
		modules = append(modules, introspect.Module())
	}

	// 用户自定义选项
	modules = append(modules, cfg.fxOptions...)

	modules = append(modules,
		fx.Invoke(func(p nodeComponents) { node.inject(p) }),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// nodeComponents 注入到 Node 的组件
type nodeComponents struct {
	fx.In

	Host        *host.Host
	EventBus    pkgif.EventBus
	Metrics     *metrics.Metrics
	Diagnostics *introspect.Server `optional:"true"`
}
