package nodehost

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/identity"
)

// Option 节点配置选项
type Option func(*nodeConfig) error

// nodeConfig 节点内部配置
type nodeConfig struct {
	config *config.Config

	// identity 直接注入的身份，优先于 config.Identity.KeyFile
	identity *identity.Identity

	// fxOptions 用户追加的 Fx 选项
	fxOptions []fx.Option
}

func newNodeConfig() *nodeConfig {
	return &nodeConfig{config: config.NewConfig()}
}

// WithConfig 使用完整配置替换默认配置
//
// 应放在其它选项之前，后续选项在此基础上修改。
func WithConfig(cfg *config.Config) Option {
	return func(c *nodeConfig) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		c.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 或 TOML 文件加载配置
func WithConfigFile(path string) Option {
	return func(c *nodeConfig) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		c.config = cfg
		return nil
	}
}

// WithIdentity 使用给定身份
func WithIdentity(id *identity.Identity) Option {
	return func(c *nodeConfig) error {
		if id == nil {
			return errors.New("identity is nil")
		}
		c.identity = id
		return nil
	}
}

// WithKeyFile 从密钥文件加载身份，文件不存在时生成并保存
func WithKeyFile(path string) Option {
	return func(c *nodeConfig) error {
		c.config.Identity.KeyFile = path
		return nil
	}
}

// WithListenAddrs 设置监听地址（multiaddr）
func WithListenAddrs(addrs ...string) Option {
	return func(c *nodeConfig) error {
		c.config.Transport.ListenAddrs = append([]string(nil), addrs...)
		return nil
	}
}

// WithPeerBounds 设置连接数边界
func WithPeerBounds(minPeers, maxPeers int) Option {
	return func(c *nodeConfig) error {
		if minPeers < 0 || maxPeers < minPeers {
			return fmt.Errorf("invalid peer bounds: min=%d max=%d", minPeers, maxPeers)
		}
		c.config.ConnMgr = c.config.ConnMgr.WithPeerBounds(minPeers, maxPeers)
		return nil
	}
}

// WithPollInterval 设置裁剪与维护的周期
func WithPollInterval(d time.Duration) Option {
	return func(c *nodeConfig) error {
		c.config.ConnMgr = c.config.ConnMgr.WithPollInterval(d)
		return nil
	}
}

// WithDialTimeout 设置单次拨号（含升级）的超时
func WithDialTimeout(d time.Duration) Option {
	return func(c *nodeConfig) error {
		c.config.ConnMgr.DialTimeout = config.Duration(d)
		return nil
	}
}

// WithHandshakeTimeout 设置升级（协商 + 握手）的超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *nodeConfig) error {
		c.config.Security.HandshakeTimeout = config.Duration(d)
		return nil
	}
}

// WithSecurity 设置安全协议偏好顺序
func WithSecurity(ids ...string) Option {
	return func(c *nodeConfig) error {
		c.config.Security.Preference = append([]string(nil), ids...)
		return nil
	}
}

// WithMuxers 设置多路复用偏好顺序
func WithMuxers(ids ...string) Option {
	return func(c *nodeConfig) error {
		c.config.Muxer.Preference = append([]string(nil), ids...)
		return nil
	}
}

// WithBootstrapPeers 设置引导节点并启用引导发现
func WithBootstrapPeers(addrs ...string) Option {
	return func(c *nodeConfig) error {
		c.config.Discovery.Bootstrap.Enabled = true
		c.config.Discovery.Bootstrap.Peers = append([]string(nil), addrs...)
		return nil
	}
}

// WithMDNS 启用或禁用局域网发现
func WithMDNS(enabled bool) Option {
	return func(c *nodeConfig) error {
		c.config.Discovery.MDNS.Enabled = enabled
		return nil
	}
}

// WithDNSAddr 启用 dnsaddr 发现
func WithDNSAddr(domains ...string) Option {
	return func(c *nodeConfig) error {
		c.config.Discovery.DNSAddr.Enabled = len(domains) > 0
		c.config.Discovery.DNSAddr.Domains = append([]string(nil), domains...)
		return nil
	}
}

// WithAutoDial 设置发现的节点是否自动拨号
func WithAutoDial(enabled bool) Option {
	return func(c *nodeConfig) error {
		c.config.ConnMgr.AutoDial = enabled
		return nil
	}
}

// WithPeerstorePath 设置地址簿数据目录，空值表示仅内存
func WithPeerstorePath(path string) Option {
	return func(c *nodeConfig) error {
		c.config.Peerstore.Path = path
		return nil
	}
}

// WithDiagnostics 在 addr 上启用诊断 HTTP 服务
func WithDiagnostics(addr string) Option {
	return func(c *nodeConfig) error {
		c.config.Diagnostics.Enabled = true
		c.config.Diagnostics.ListenAddr = addr
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(c *nodeConfig) error {
		c.fxOptions = append(c.fxOptions, opts...)
		return nil
	}
}
