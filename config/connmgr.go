package config

import (
	"errors"
	"time"
)

// ConnManagerConfig 连接管理配置
//
// 不变量：0 ≤ MinPeers ≤ MaxPeers，PollInterval > 0。
type ConnManagerConfig struct {
	// MinPeers 低于此值时主动从地址簿拨号
	MinPeers int `json:"min_peers" toml:"min_peers"`

	// MaxPeers 会话数上限，超出后由裁剪循环回收
	MaxPeers int `json:"max_peers" toml:"max_peers"`

	// PollInterval 裁剪与维护的周期
	PollInterval Duration `json:"poll_interval" toml:"poll_interval"`

	// DialTimeout 单次拨号（含升级）的超时
	DialTimeout Duration `json:"dial_timeout" toml:"dial_timeout"`

	// Backoff 拨号失败后的重试退避
	Backoff BackoffConfig `json:"backoff" toml:"backoff"`

	// AutoDial 发现的节点是否直接进入 admit
	AutoDial bool `json:"auto_dial" toml:"auto_dial"`

	// MaxDialsPerSecond 每秒最多发起的拨号数，0 表示不限
	MaxDialsPerSecond float64 `json:"max_dials_per_second" toml:"max_dials_per_second"`
}

// BackoffConfig 指数退避配置
type BackoffConfig struct {
	Initial    Duration `json:"initial" toml:"initial"`
	Max        Duration `json:"max" toml:"max"`
	Multiplier float64  `json:"multiplier" toml:"multiplier"`
	// Jitter 随机化因子，0 表示确定性退避
	Jitter float64 `json:"jitter" toml:"jitter"`
}

// DefaultConnManagerConfig 返回默认连接管理配置
func DefaultConnManagerConfig() ConnManagerConfig {
	return ConnManagerConfig{
		// ════════════════════════════════════════════════════════════════════
		// 连接数边界
		// ════════════════════════════════════════════════════════════════════
		MinPeers:     25,                        // 低于 25 个会话时主动拨号
		MaxPeers:     100,                       // 超过 100 个会话时裁剪
		PollInterval: Duration(5 * time.Second), // 每 5 秒检查一次

		// ════════════════════════════════════════════════════════════════════
		// 拨号
		// ════════════════════════════════════════════════════════════════════
		DialTimeout: Duration(10 * time.Second),
		Backoff: BackoffConfig{
			Initial:    Duration(time.Second),
			Max:        Duration(5 * time.Minute),
			Multiplier: 2,
			Jitter:     0.1,
		},
		AutoDial:          true,
		MaxDialsPerSecond: 10,
	}
}

// Validate 验证连接管理配置
func (c ConnManagerConfig) Validate() error {
	if c.MinPeers < 0 || c.MaxPeers < 0 {
		return errors.New("peer bounds must be non-negative")
	}
	if c.MinPeers > c.MaxPeers {
		return errors.New("min_peers must not exceed max_peers")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial_timeout must be positive")
	}
	if c.MaxDialsPerSecond < 0 {
		return errors.New("max_dials_per_second must be non-negative")
	}
	return c.Backoff.Validate()
}

// Validate 验证退避配置
func (c BackoffConfig) Validate() error {
	if c.Initial <= 0 {
		return errors.New("backoff initial must be positive")
	}
	if c.Max < c.Initial {
		return errors.New("backoff max must not be smaller than initial")
	}
	if c.Multiplier < 1 {
		return errors.New("backoff multiplier must be >= 1")
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return errors.New("backoff jitter must be in [0, 1)")
	}
	return nil
}

// WithPeerBounds 设置连接数边界
func (c ConnManagerConfig) WithPeerBounds(minPeers, maxPeers int) ConnManagerConfig {
	c.MinPeers = minPeers
	c.MaxPeers = maxPeers
	return c
}

// WithPollInterval 设置轮询周期
func (c ConnManagerConfig) WithPollInterval(d time.Duration) ConnManagerConfig {
	c.PollInterval = Duration(d)
	return c
}
