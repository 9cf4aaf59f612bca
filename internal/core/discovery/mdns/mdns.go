// Package mdns 实现局域网多播发现
//
// 每个节点注册一个 <instance>.<service-tag>.local. 服务，TXT 记录携带身份与
// 多地址，并按周期查询同一服务标签下的其他节点。
package mdns

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/mdns"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("discovery.mdns")

// Name 机制名称
const Name = "mdns"

const (
	domain = "local."

	// maxQueryTimeout 单次查询等待响应的上限
	maxQueryTimeout = 5 * time.Second
)

// 错误定义
var (
	ErrInvalidEntry = errors.New("invalid mdns entry")
	ErrNoLocalIP    = errors.New("no local ip to advertise")
)

// QueryFunc 执行一次 mDNS 查询
type QueryFunc func(ctx context.Context, params *mdns.QueryParam) error

// Discoverer mDNS 发现
type Discoverer struct {
	serviceTag string
	interval   time.Duration
	clock      clock.Clock
	query      QueryFunc

	mu   sync.Mutex
	self types.PeerInfo
}

var (
	_ pkgif.Discoverer = (*Discoverer)(nil)
	_ pkgif.Advertiser = (*Discoverer)(nil)
)

// Option 选项
type Option func(*Discoverer)

// WithClock 替换时钟
func WithClock(c clock.Clock) Option {
	return func(d *Discoverer) { d.clock = c }
}

// WithQuery 替换查询函数
func WithQuery(q QueryFunc) Option {
	return func(d *Discoverer) { d.query = q }
}

// New 创建 mDNS 发现
func New(cfg config.MDNSConfig, opts ...Option) *Discoverer {
	d := &Discoverer{
		serviceTag: cfg.ServiceTag,
		interval:   cfg.Interval.Duration(),
		clock:      clock.New(),
		query:      mdns.QueryContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name 返回机制名称
func (d *Discoverer) Name() string { return Name }

// Advertise 设置要公布的本节点信息
func (d *Discoverer) Advertise(self types.PeerInfo) {
	d.mu.Lock()
	d.self = self
	d.mu.Unlock()
}

// Discover 注册本节点服务并开始周期查询
//
// 没有调用 Advertise 时只查询不注册。
func (d *Discoverer) Discover(ctx context.Context) (<-chan types.PeerInfo, error) {
	d.mu.Lock()
	self := d.self
	d.mu.Unlock()

	var server *mdns.Server
	if self.HasIdentity() && len(self.Addrs) > 0 {
		s, err := d.startServer(self)
		if err != nil {
			return nil, err
		}
		server = s
	}

	out := make(chan types.PeerInfo)
	ticker := d.clock.Ticker(d.interval)
	go func() {
		defer close(out)
		defer ticker.Stop()
		if server != nil {
			defer func() {
				if err := server.Shutdown(); err != nil {
					log.Debug("关闭 mDNS 服务器失败", "error", err)
				}
			}()
		}

		for {
			d.runQuery(ctx, self.ID, out)
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (d *Discoverer) startServer(self types.PeerInfo) (*mdns.Server, error) {
	addrs := expandAddrs(self.Addrs)
	ips := ipsOf(addrs)
	if len(ips) == 0 {
		return nil, ErrNoLocalIP
	}

	instance := "nodehost-" + self.ID.ShortString()
	txt := buildTXTRecords(self.ID, addrs)
	service, err := mdns.NewMDNSService(instance, d.serviceTag, domain, "", inferPort(addrs), ips, txt)
	if err != nil {
		return nil, fmt.Errorf("create mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mdns server: %w", err)
	}

	log.Info("mDNS 服务器已启动",
		"instance", instance,
		"service", d.serviceTag,
		"addrs", len(addrs))
	return server, nil
}

// runQuery 执行一轮查询并把解析出的候选发送到 out
func (d *Discoverer) runQuery(ctx context.Context, local types.PeerID, out chan<- types.PeerInfo) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			info, err := parseEntry(entry)
			if err != nil {
				log.Debug("忽略 mDNS 条目", "error", err)
				continue
			}
			if info.ID == local {
				continue
			}
			select {
			case out <- info:
			case <-ctx.Done():
			}
		}
	}()

	params := mdns.DefaultParams(d.serviceTag)
	params.Domain = domain
	params.Entries = entries
	params.Timeout = d.queryTimeout()
	params.WantUnicastResponse = true
	if err := d.query(ctx, params); err != nil && ctx.Err() == nil {
		log.Debug("mDNS 查询失败", "error", err)
	}
	close(entries)
	<-done
}

func (d *Discoverer) queryTimeout() time.Duration {
	if d.interval > 0 && d.interval < maxQueryTimeout {
		return d.interval
	}
	return maxQueryTimeout
}

