package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-nodehost/pkg/types"
)

// DiscoveryConfig 节点发现配置
type DiscoveryConfig struct {
	// MDNS 局域网多播发现
	MDNS MDNSConfig `json:"mdns" toml:"mdns"`

	// Bootstrap 引导节点列表
	Bootstrap BootstrapConfig `json:"bootstrap" toml:"bootstrap"`

	// DNSAddr 基于 _dnsaddr TXT 记录的发现
	DNSAddr DNSAddrConfig `json:"dnsaddr" toml:"dnsaddr"`

	// RestartBackoff 机制出错后重新启动的最大退避
	RestartBackoff Duration `json:"restart_backoff" toml:"restart_backoff"`
}

// MDNSConfig mDNS 配置
type MDNSConfig struct {
	Enabled    bool     `json:"enabled" toml:"enabled"`
	Interval   Duration `json:"interval" toml:"interval"`
	ServiceTag string   `json:"service_tag" toml:"service_tag"`
}

// BootstrapConfig 引导节点配置
type BootstrapConfig struct {
	Enabled  bool     `json:"enabled" toml:"enabled"`
	Interval Duration `json:"interval" toml:"interval"`
	// Peers 形如 /ip4/1.2.3.4/tcp/4001/p2p/Qm... 的地址
	Peers []string `json:"peers" toml:"peers"`
}

// DNSAddrConfig dnsaddr 配置
type DNSAddrConfig struct {
	Enabled  bool     `json:"enabled" toml:"enabled"`
	Interval Duration `json:"interval" toml:"interval"`
	// Domains 要解析的域名，如 bootstrap.example.org
	Domains []string `json:"domains" toml:"domains"`
	// Resolver DNS 服务器地址 host:port，空值使用 /etc/resolv.conf
	Resolver string `json:"resolver" toml:"resolver"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		MDNS: MDNSConfig{
			Enabled:    true,
			Interval:   Duration(10 * time.Second),
			ServiceTag: "_nodehost._udp",
		},
		Bootstrap: BootstrapConfig{
			Enabled:  true,
			Interval: Duration(30 * time.Second),
		},
		DNSAddr: DNSAddrConfig{
			Enabled:  false,
			Interval: Duration(5 * time.Minute),
		},
		RestartBackoff: Duration(time.Minute),
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	if c.MDNS.Enabled {
		if c.MDNS.Interval <= 0 {
			return errors.New("mdns interval must be positive")
		}
		if c.MDNS.ServiceTag == "" {
			return errors.New("mdns service_tag is required")
		}
	}
	if c.Bootstrap.Enabled {
		if c.Bootstrap.Interval <= 0 {
			return errors.New("bootstrap interval must be positive")
		}
		for _, p := range c.Bootstrap.Peers {
			if _, err := types.PeerInfoFromString(p); err != nil {
				return fmt.Errorf("bootstrap peer: %w", err)
			}
		}
	}
	if c.DNSAddr.Enabled {
		if c.DNSAddr.Interval <= 0 {
			return errors.New("dnsaddr interval must be positive")
		}
		if len(c.DNSAddr.Domains) == 0 {
			return errors.New("dnsaddr enabled but no domains configured")
		}
	}
	if c.RestartBackoff <= 0 {
		return errors.New("restart_backoff must be positive")
	}
	return nil
}
