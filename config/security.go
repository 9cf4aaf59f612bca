package config

import (
	"errors"
	"fmt"
	"time"
)

// 安全协议名称
const (
	SecurityNoise = "noise"
	SecurityTLS   = "tls"
)

// 多路复用协议名称
const (
	MuxerYamux          = "yamux"
	MuxerHashicorpYamux = "hashicorp-yamux"
)

// SecurityConfig 安全传输配置
type SecurityConfig struct {
	// Preference 按偏好排序的安全协议，顺序即协商优先级
	Preference []string `json:"preference" toml:"preference"`

	// HandshakeTimeout 整个升级过程（协商 + 握手）的超时
	HandshakeTimeout Duration `json:"handshake_timeout" toml:"handshake_timeout"`
}

// DefaultSecurityConfig 返回默认安全配置
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		Preference:       []string{SecurityNoise, SecurityTLS},
		HandshakeTimeout: Duration(10 * time.Second),
	}
}

// Validate 验证安全配置
func (c SecurityConfig) Validate() error {
	if len(c.Preference) == 0 {
		return errors.New("at least one security protocol must be enabled")
	}
	if err := validateNames(c.Preference, SecurityNoise, SecurityTLS); err != nil {
		return err
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("handshake_timeout must be positive")
	}
	return nil
}

// MuxerConfig 多路复用配置
type MuxerConfig struct {
	// Preference 按偏好排序的多路复用协议
	Preference []string `json:"preference" toml:"preference"`
}

// DefaultMuxerConfig 返回默认多路复用配置
func DefaultMuxerConfig() MuxerConfig {
	return MuxerConfig{
		Preference: []string{MuxerYamux, MuxerHashicorpYamux},
	}
}

// Validate 验证多路复用配置
func (c MuxerConfig) Validate() error {
	if len(c.Preference) == 0 {
		return errors.New("at least one muxer must be enabled")
	}
	return validateNames(c.Preference, MuxerYamux, MuxerHashicorpYamux)
}

// validateNames 检查名称合法且不重复
func validateNames(names []string, known ...string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		ok := false
		for _, k := range known {
			if n == k {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("unknown protocol %q", n)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("protocol %q listed twice", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}
