// Package config 提供统一的配置管理
//
// 本包采用分文件的子配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，带 DefaultXxx() 与 Validate()
//   - 支持从 JSON 或 TOML 文件加载
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.ConnMgr.MaxPeers = 50
//
//	cfg, err := config.LoadFile("node.toml")
package config

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-nodehost/pkg/types"
)

// Config 是 nodehost 的完整配置结构
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity" toml:"identity"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport" toml:"transport"`

	// Security 安全传输配置
	Security SecurityConfig `json:"security" toml:"security"`

	// Muxer 多路复用配置
	Muxer MuxerConfig `json:"muxer" toml:"muxer"`

	// ConnMgr 连接管理配置
	ConnMgr ConnManagerConfig `json:"conn_mgr" toml:"conn_mgr"`

	// Discovery 节点发现配置
	Discovery DiscoveryConfig `json:"discovery" toml:"discovery"`

	// Peerstore 地址簿配置
	Peerstore PeerstoreConfig `json:"peerstore" toml:"peerstore"`

	// Diagnostics 诊断服务配置
	Diagnostics DiagnosticsConfig `json:"diagnostics" toml:"diagnostics"`

	// Log 日志配置
	Log LogConfig `json:"log" toml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:    DefaultIdentityConfig(),
		Transport:   DefaultTransportConfig(),
		Security:    DefaultSecurityConfig(),
		Muxer:       DefaultMuxerConfig(),
		ConnMgr:     DefaultConnManagerConfig(),
		Discovery:   DefaultDiscoveryConfig(),
		Peerstore:   DefaultPeerstoreConfig(),
		Diagnostics: DefaultDiagnosticsConfig(),
		Log:         DefaultLogConfig(),
	}
}

// Validate 验证配置的有效性
//
// 返回的错误均包装 types.ErrConfiguration。
func (c *Config) Validate() error {
	if c == nil {
		return configError(errors.New("config is nil"))
	}
	checks := []struct {
		section string
		fn      func() error
	}{
		{"identity", c.Identity.Validate},
		{"transport", c.Transport.Validate},
		{"security", c.Security.Validate},
		{"muxer", c.Muxer.Validate},
		{"conn_mgr", c.ConnMgr.Validate},
		{"discovery", c.Discovery.Validate},
		{"peerstore", c.Peerstore.Validate},
		{"diagnostics", c.Diagnostics.Validate},
		{"log", c.Log.Validate},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			return configError(fmt.Errorf("%s: %w", check.section, err))
		}
	}
	return nil
}

func configError(err error) error {
	return fmt.Errorf("%w: %w", types.ErrConfiguration, err)
}
