// Package bootstrap 实现静态引导节点发现
//
// 按固定周期重复公布配置的引导节点，每轮随机打乱顺序，
// 使多个节点同时启动时不会集中拨号同一个引导节点。
package bootstrap

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("discovery.bootstrap")

// Name 机制名称
const Name = "bootstrap"

// Discoverer 引导节点发现
type Discoverer struct {
	peers    []types.PeerInfo
	interval time.Duration
	clock    clock.Clock
}

var _ pkgif.Discoverer = (*Discoverer)(nil)

// Option 选项
type Option func(*Discoverer)

// WithClock 替换时钟
func WithClock(c clock.Clock) Option {
	return func(d *Discoverer) { d.clock = c }
}

// New 从配置创建
func New(cfg config.BootstrapConfig, opts ...Option) (*Discoverer, error) {
	peers := make([]types.PeerInfo, 0, len(cfg.Peers))
	for _, s := range cfg.Peers {
		info, err := types.PeerInfoFromString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: bootstrap peer %q: %w", types.ErrConfiguration, s, err)
		}
		peers = mergeInto(peers, info)
	}
	return NewWithPeers(peers, cfg.Interval.Duration(), opts...), nil
}

// NewWithPeers 使用已解析的节点创建
func NewWithPeers(peers []types.PeerInfo, interval time.Duration, opts ...Option) *Discoverer {
	d := &Discoverer{
		peers:    peers,
		interval: interval,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name 返回机制名称
func (d *Discoverer) Name() string { return Name }

// Discover 立即公布一轮，之后每个周期重复
func (d *Discoverer) Discover(ctx context.Context) (<-chan types.PeerInfo, error) {
	out := make(chan types.PeerInfo)
	if len(d.peers) == 0 {
		close(out)
		return out, nil
	}

	ticker := d.clock.Ticker(d.interval)
	go func() {
		defer close(out)
		defer ticker.Stop()

		for {
			if !d.announce(ctx, out) {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// announce 随机顺序发送全部引导节点，ctx 结束时返回 false
func (d *Discoverer) announce(ctx context.Context, out chan<- types.PeerInfo) bool {
	order := rand.Perm(len(d.peers))
	for _, i := range order {
		select {
		case out <- d.peers[i]:
		case <-ctx.Done():
			return false
		}
	}
	log.Debug("公布引导节点", "count", len(d.peers))
	return true
}

// mergeInto 同一身份的多个地址合并为一条
func mergeInto(peers []types.PeerInfo, info types.PeerInfo) []types.PeerInfo {
	if info.HasIdentity() {
		for i := range peers {
			if peers[i].ID == info.ID {
				peers[i].Addrs = types.AppendUniqueAddrs(peers[i].Addrs, info.Addrs...)
				return peers
			}
		}
	}
	return append(peers, info)
}
