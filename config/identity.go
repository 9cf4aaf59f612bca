package config

import (
	"errors"
	"time"
)

// IdentityConfig 身份配置
type IdentityConfig struct {
	// KeyFile PEM 格式私钥文件路径；为空时每次启动生成临时身份
	KeyFile string `json:"key_file" toml:"key_file"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	return nil
}

// PeerstoreConfig 地址簿配置
type PeerstoreConfig struct {
	// Path badger 数据目录；为空时仅保存在内存
	Path string `json:"path" toml:"path"`

	// RetainDisconnected 保留的已断开节点记录数
	RetainDisconnected int `json:"retain_disconnected" toml:"retain_disconnected"`
}

// DefaultPeerstoreConfig 返回默认地址簿配置
func DefaultPeerstoreConfig() PeerstoreConfig {
	return PeerstoreConfig{
		RetainDisconnected: 50,
	}
}

// Validate 验证地址簿配置
func (c PeerstoreConfig) Validate() error {
	if c.RetainDisconnected <= 0 {
		return errors.New("retain_disconnected must be positive")
	}
	return nil
}

// DiagnosticsConfig 诊断 HTTP 服务配置
type DiagnosticsConfig struct {
	// Enabled 是否启动诊断服务
	Enabled bool `json:"enabled" toml:"enabled"`

	// ListenAddr host:port
	ListenAddr string `json:"listen_addr" toml:"listen_addr"`

	// ShutdownTimeout 关闭时等待请求完成的时长
	ShutdownTimeout Duration `json:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DefaultDiagnosticsConfig 返回默认诊断配置
func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		Enabled:         false,
		ListenAddr:      "127.0.0.1:9180",
		ShutdownTimeout: Duration(5 * time.Second),
	}
}

// Validate 验证诊断配置
func (c DiagnosticsConfig) Validate() error {
	if c.Enabled && c.ListenAddr == "" {
		return errors.New("diagnostics listen_addr is required")
	}
	return nil
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 与 NODEHOST_LOG_LEVEL 语法相同，空值保持环境变量设置
	Level string `json:"level" toml:"level"`

	// Format text 或 json
	Format string `json:"format" toml:"format"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch c.Format {
	case "", "text", "json":
		return nil
	default:
		return errors.New("log format must be text or json")
	}
}
