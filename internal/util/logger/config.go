package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// SubsystemLevels 各子系统的日志级别
	SubsystemLevels map[string]slog.Level

	// Format 输出格式
	Format LogFormat
}

// LevelForSubsystem 获取指定子系统的日志级别
//
// 支持前缀匹配："core" 的配置作用于 "core.connmgr"。
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	best, bestLen := c.DefaultLevel, 0
	for name, level := range c.SubsystemLevels {
		if strings.HasPrefix(subsystem, name+".") && len(name) > bestLen {
			best, bestLen = level, len(name)
		}
	}
	return best
}

func (c *Config) clone() *Config {
	out := &Config{
		DefaultLevel:    c.DefaultLevel,
		SubsystemLevels: make(map[string]slog.Level, len(c.SubsystemLevels)),
		Format:          c.Format,
	}
	for k, v := range c.SubsystemLevels {
		out.SubsystemLevels[k] = v
	}
	return out
}

var active atomic.Pointer[Config]

func currentConfig() *Config {
	if cfg := active.Load(); cfg != nil {
		return cfg
	}
	cfg := ConfigFromEnv()
	if active.CompareAndSwap(nil, cfg) {
		return cfg
	}
	return active.Load()
}

func storeConfig(cfg *Config) {
	active.Store(cfg)
}

// ConfigFromEnv 从环境变量解析配置
//
// 环境变量:
//   - NODEHOST_LOG_LEVEL: 格式 子系统=级别,子系统=级别,默认级别
//   - NODEHOST_LOG_FORMAT: text 或 json
//
// 非法值被忽略并保留默认（info, text）。
func ConfigFromEnv() *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}
	if levelStr := os.Getenv("NODEHOST_LOG_LEVEL"); levelStr != "" {
		_ = parseLevelConfig(cfg, levelStr)
	}
	if formatStr := os.Getenv("NODEHOST_LOG_FORMAT"); formatStr != "" {
		if f, err := parseFormat(formatStr); err == nil {
			cfg.Format = f
		}
	}
	return cfg
}

// ResetConfig 重新从环境变量加载配置（仅用于测试）
func ResetConfig() {
	storeConfig(ConfigFromEnv())
}

// parseLevelConfig 解析 subsystem=level,subsystem=level,defaultLevel
func parseLevelConfig(cfg *Config, levelStr string) error {
	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, levelName, ok := strings.Cut(part, "="); ok {
			level, err := ParseLevel(strings.TrimSpace(levelName))
			if err != nil {
				return err
			}
			cfg.SubsystemLevels[strings.TrimSpace(name)] = level
			continue
		}
		level, err := ParseLevel(part)
		if err != nil {
			return err
		}
		cfg.DefaultLevel = level
	}
	return nil
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

func parseFormat(name string) (LogFormat, error) {
	switch strings.ToLower(name) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q", name)
	}
}
