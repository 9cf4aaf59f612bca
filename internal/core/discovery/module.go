package discovery

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/connmgr"
	"github.com/dep2p/go-nodehost/internal/core/discovery/bootstrap"
	"github.com/dep2p/go-nodehost/internal/core/discovery/dnsaddr"
	"github.com/dep2p/go-nodehost/internal/core/discovery/mdns"
	"github.com/dep2p/go-nodehost/internal/core/metrics"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// MechanismsInput 发现机制条目的输入
type MechanismsInput struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// BuildMechanisms 按配置创建启用的发现机制
//
// 引导节点列表为空时不创建 bootstrap。
func BuildMechanisms(cfg config.DiscoveryConfig) ([]pkgif.Discoverer, error) {
	var out []pkgif.Discoverer
	if cfg.MDNS.Enabled {
		out = append(out, mdns.New(cfg.MDNS))
	}
	if cfg.Bootstrap.Enabled && len(cfg.Bootstrap.Peers) > 0 {
		d, err := bootstrap.New(cfg.Bootstrap)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if cfg.DNSAddr.Enabled {
		d, err := dnsaddr.New(cfg.DNSAddr)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ProvideEntries 把启用的机制注册为发现能力
func ProvideEntries(input MechanismsInput) ([]capability.Entry, error) {
	cfg := config.DefaultDiscoveryConfig()
	if input.Config != nil {
		cfg = input.Config.Discovery
	}
	mechanisms, err := BuildMechanisms(cfg)
	if err != nil {
		return nil, err
	}

	entries := make([]capability.Entry, 0, len(mechanisms))
	for i, m := range mechanisms {
		entries = append(entries, capability.Entry{
			Kind:       types.KindDiscovery,
			Priority:   i,
			Descriptor: capability.Descriptor{ID: m.Name(), Impl: m},
		})
	}
	return entries, nil
}

// ModuleInput 协调器输入依赖
type ModuleInput struct {
	fx.In

	Config   *config.Config `optional:"true"`
	Identity pkgif.Identity
	Registry *capability.Registry
	AddrBook pkgif.AddrBook
	Manager  *connmgr.Manager `optional:"true"`
	EventBus pkgif.EventBus   `optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

// ProvideCoordinator 创建协调器
//
// 启动与停止由节点主机按顺序驱动。
func ProvideCoordinator(input ModuleInput) (*Coordinator, error) {
	cfg := config.NewConfig()
	if input.Config != nil {
		cfg = input.Config
	}

	opts := []Option{
		WithMetrics(input.Metrics),
		WithRestartBackoff(cfg.Discovery.RestartBackoff.Duration()),
		WithRateLimit(cfg.ConnMgr.MaxDialsPerSecond),
	}
	// 自动拨号只把连接池补到 minPeers
	if cfg.ConnMgr.AutoDial && input.Manager != nil {
		opts = append(opts, WithAdmitter(AdmitterFunc(input.Manager.AdmitDiscovered)))
	}
	if input.EventBus != nil {
		em, err := input.EventBus.Emitter(new(types.EvtPeerDiscovered))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithEmitter(em))
	}

	return New(input.Identity.PeerID(), input.AddrBook, input.Registry.Discoverers(), opts...)
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("discovery",
		fx.Provide(capability.AsEntries(ProvideEntries)),
		fx.Provide(ProvideCoordinator),
	)
}
