// Package logger 提供 nodehost 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（NODEHOST_LOG_LEVEL, NODEHOST_LOG_FORMAT）
//   - 配置文件覆盖（Apply），对已创建的 Logger 立即生效
//
// 使用示例:
//
//	package connmgr
//
//	import "github.com/dep2p/go-nodehost/internal/util/logger"
//
//	var log = logger.Logger("core.connmgr")
//
//	func foo() {
//	    log.Info("节点已连接", "peer", logger.ShortID(peerID))
//	}
//
// 环境变量配置:
//
//	# 所有模块 info，connmgr 模块 debug
//	NODEHOST_LOG_LEVEL=core.connmgr=debug,info
//
//	# JSON 格式输出
//	NODEHOST_LOG_FORMAT=json
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回相同实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := currentConfig()
	h := newHandler(subsystem, cfg.LevelForSubsystem(subsystem))
	l := slog.New(h)

	actual, loaded := loggers.LoadOrStore(subsystem, l)
	if !loaded {
		handlers.Store(subsystem, h)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).level.Set(level)
	}
}

// SetGlobalLevel 设置所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).level.Set(level)
		return true
	})
}

// Apply 使用配置文件中的日志设置覆盖环境变量
//
// level 语法与 NODEHOST_LOG_LEVEL 相同；format 为 "text" 或 "json"，空值不修改。
func Apply(level, format string) error {
	cfg := currentConfig().clone()
	if level != "" {
		if err := parseLevelConfig(cfg, level); err != nil {
			return err
		}
	}
	if format != "" {
		f, err := parseFormat(format)
		if err != nil {
			return err
		}
		cfg.Format = f
	}
	storeConfig(cfg)

	handlers.Range(func(key, value any) bool {
		value.(*subsystemHandler).level.Set(cfg.LevelForSubsystem(key.(string)))
		return true
	})
	return nil
}

// Discard 返回一个丢弃所有日志的 Logger（用于测试）
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 也会切换到新的输出。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}

// ShortID 返回用于日志字段的短 ID
func ShortID(id fmt.Stringer) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
