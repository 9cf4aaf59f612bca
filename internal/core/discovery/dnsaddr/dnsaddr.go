// Package dnsaddr 通过 _dnsaddr TXT 记录发现节点
//
// 域名 example.org 的候选来自 _dnsaddr.example.org 的 TXT 记录，
// 每条形如 "dnsaddr=/ip4/1.2.3.4/tcp/4001/p2p/Qm..."。
// 值本身为 /dnsaddr/<domain> 时递归解析，最多 MaxDepth 层。
package dnsaddr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("discovery.dnsaddr")

// Name 机制名称
const Name = "dnsaddr"

const (
	// TXTPrefix TXT 记录值前缀
	TXTPrefix = "dnsaddr="

	// DomainPrefix 查询域名前缀
	DomainPrefix = "_dnsaddr."

	// MaxDepth 递归解析最大深度
	MaxDepth = 3

	queryTimeout = 5 * time.Second
	maxParallel  = 4
)

// 错误定义
var (
	ErrNoResolver    = errors.New("no dns resolver configured")
	ErrMaxDepth      = errors.New("dnsaddr recursion too deep")
	ErrLookupFailed  = errors.New("dnsaddr lookup failed")
	ErrAllDomainsBad = errors.New("all dnsaddr domains failed")
)

// Discoverer dnsaddr 发现
type Discoverer struct {
	domains  []string
	resolver string
	interval time.Duration
	client   *dns.Client
	clock    clock.Clock
}

var _ pkgif.Discoverer = (*Discoverer)(nil)

// Option 选项
type Option func(*Discoverer)

// WithClock 替换时钟
func WithClock(c clock.Clock) Option {
	return func(d *Discoverer) { d.clock = c }
}

// New 创建 dnsaddr 发现，未指定 Resolver 时读取 /etc/resolv.conf
func New(cfg config.DNSAddrConfig, opts ...Option) (*Discoverer, error) {
	resolver := cfg.Resolver
	if resolver == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil || len(conf.Servers) == 0 {
			return nil, fmt.Errorf("%w: %w", types.ErrConfiguration, ErrNoResolver)
		}
		resolver = net.JoinHostPort(conf.Servers[0], conf.Port)
	}

	d := &Discoverer{
		domains:  cfg.Domains,
		resolver: resolver,
		interval: cfg.Interval.Duration(),
		client:   &dns.Client{Net: "udp", Timeout: queryTimeout},
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name 返回机制名称
func (d *Discoverer) Name() string { return Name }

// Discover 立即解析一轮，之后每个周期重复
//
// 一轮中所有域名都失败时关闭通道，由协调器按退避重启。
func (d *Discoverer) Discover(ctx context.Context) (<-chan types.PeerInfo, error) {
	out := make(chan types.PeerInfo)
	ticker := d.clock.Ticker(d.interval)

	go func() {
		defer close(out)
		defer ticker.Stop()

		for {
			infos, err := d.ResolveAll(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("dnsaddr 解析失败", "error", err)
				}
				return
			}
			for _, info := range infos {
				select {
				case out <- info:
				case <-ctx.Done():
					return
				}
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

// ResolveAll 并发解析全部域名并按身份合并
func (d *Discoverer) ResolveAll(ctx context.Context) ([]types.PeerInfo, error) {
	var (
		mu     sync.Mutex
		found  []types.PeerInfo
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, domain := range d.domains {
		domain := domain
		g.Go(func() error {
			infos, err := d.Resolve(gctx, domain)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				log.Debug("解析 dnsaddr 域名失败", "domain", domain, "error", err)
				return nil
			}
			found = append(found, infos...)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.domains) > 0 && failed == len(d.domains) {
		return nil, ErrAllDomainsBad
	}
	return types.MergePeerInfos(found), nil
}

// Resolve 解析单个域名
func (d *Discoverer) Resolve(ctx context.Context, domain string) ([]types.PeerInfo, error) {
	return d.resolve(ctx, domain, 0)
}

func (d *Discoverer) resolve(ctx context.Context, domain string, depth int) ([]types.PeerInfo, error) {
	if depth >= MaxDepth {
		return nil, fmt.Errorf("%w: %s", ErrMaxDepth, domain)
	}

	values, err := d.lookupTXT(ctx, DomainPrefix+domain)
	if err != nil {
		return nil, err
	}

	var out []types.PeerInfo
	for _, v := range values {
		addr, err := ma.NewMultiaddr(v)
		if err != nil {
			log.Debug("跳过无法解析的 dnsaddr 记录", "value", v, "error", err)
			continue
		}

		if nested, err := addr.ValueForProtocol(ma.P_DNSADDR); err == nil && isOnlyDNSAddr(addr) {
			infos, err := d.resolve(ctx, nested, depth+1)
			if err != nil {
				log.Debug("递归解析 dnsaddr 失败", "domain", nested, "error", err)
				continue
			}
			out = append(out, infos...)
			continue
		}

		transport, id, err := types.SplitP2PAddr(addr)
		if err != nil {
			log.Debug("跳过无效的 dnsaddr 地址", "addr", addr, "error", err)
			continue
		}
		out = append(out, types.PeerInfo{ID: id, Addrs: []ma.Multiaddr{transport}})
	}
	return out, nil
}

// lookupTXT 查询 TXT 记录，返回带 dnsaddr= 前缀的值（已去前缀）
func (d *Discoverer) lookupTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	resp, _, err := d.client.ExchangeContext(ctx, msg, d.resolver)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLookupFailed, name, err)
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s: %s", ErrLookupFailed, name, dns.RcodeToString[resp.Rcode])
	}

	var values []string
	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		v := strings.Join(txt.Txt, "")
		if strings.HasPrefix(v, TXTPrefix) {
			values = append(values, strings.TrimPrefix(v, TXTPrefix))
		}
	}
	return values, nil
}

// isOnlyDNSAddr 地址是否为 /dnsaddr/<domain>，可带 /p2p 后缀
func isOnlyDNSAddr(addr ma.Multiaddr) bool {
	for _, p := range addr.Protocols() {
		if p.Code != ma.P_DNSADDR && p.Code != ma.P_P2P {
			return false
		}
	}
	return true
}
