package config

import (
	"errors"
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// TransportConfig 传输层配置
type TransportConfig struct {
	// ListenAddrs 监听地址（multiaddr）
	ListenAddrs []string `json:"listen_addrs" toml:"listen_addrs"`

	// EnableTCP 启用 TCP 传输
	EnableTCP bool `json:"enable_tcp" toml:"enable_tcp"`

	// EnableWebSocket 启用 WebSocket 传输
	EnableWebSocket bool `json:"enable_websocket" toml:"enable_websocket"`

	// EnableQUIC 启用 QUIC 传输
	EnableQUIC bool `json:"enable_quic" toml:"enable_quic"`

	// DialTimeout 建立原始连接的超时（不含升级）
	DialTimeout Duration `json:"dial_timeout" toml:"dial_timeout"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddrs: []string{
			"/ip4/0.0.0.0/tcp/0",
			"/ip4/0.0.0.0/tcp/0/ws",
		},
		EnableTCP:       true,
		EnableWebSocket: true,
		EnableQUIC:      false,
		DialTimeout:     Duration(5 * time.Second),
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if !c.EnableTCP && !c.EnableWebSocket && !c.EnableQUIC {
		return errors.New("at least one transport must be enabled")
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial_timeout must be positive")
	}
	for _, s := range c.ListenAddrs {
		if _, err := ma.NewMultiaddr(s); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", s, err)
		}
	}
	return nil
}

// ParsedListenAddrs 返回解析后的监听地址
func (c TransportConfig) ParsedListenAddrs() ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(c.ListenAddrs))
	for _, s := range c.ListenAddrs {
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
