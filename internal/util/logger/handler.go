package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	// globalOutput 全局日志输出目标，默认为 stderr
	globalOutput   io.Writer = os.Stderr
	globalOutputMu sync.RWMutex
)

// dynamicWriter 每次写入时查找 globalOutput，
// 使 SetOutput 对已创建的 Logger 生效
type dynamicWriter struct{}

func (dynamicWriter) Write(p []byte) (int, error) {
	globalOutputMu.RLock()
	out := globalOutput
	globalOutputMu.RUnlock()
	return out.Write(p)
}

// subsystemHandler 支持子系统级别控制与运行时切换格式的 slog.Handler
//
// 同时持有文本和 JSON 两个内部 Handler，Handle 时按当前配置选择。
type subsystemHandler struct {
	level *slog.LevelVar
	text  slog.Handler
	json  slog.Handler
}

func newHandler(subsystem string, level slog.Level) *subsystemHandler {
	lv := new(slog.LevelVar)
	lv.Set(level)

	opts := &slog.HandlerOptions{
		// 级别过滤由 subsystemHandler.Enabled 负责
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelToString(lvl))
				}
			}
			return a
		},
	}
	attrs := []slog.Attr{slog.String("subsystem", subsystem)}

	return &subsystemHandler{
		level: lv,
		text:  slog.NewTextHandler(dynamicWriter{}, opts).WithAttrs(attrs),
		json:  slog.NewJSONHandler(dynamicWriter{}, opts).WithAttrs(attrs),
	}
}

// Enabled 检查是否启用指定级别
func (h *subsystemHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle 处理日志记录
func (h *subsystemHandler) Handle(ctx context.Context, r slog.Record) error {
	if currentConfig().Format == FormatJSON {
		return h.json.Handle(ctx, r)
	}
	return h.text.Handle(ctx, r)
}

// WithAttrs 添加属性
func (h *subsystemHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &subsystemHandler{
		level: h.level,
		text:  h.text.WithAttrs(attrs),
		json:  h.json.WithAttrs(attrs),
	}
}

// WithGroup 添加组
func (h *subsystemHandler) WithGroup(name string) slog.Handler {
	return &subsystemHandler{
		level: h.level,
		text:  h.text.WithGroup(name),
		json:  h.json.WithGroup(name),
	}
}

func levelToString(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

// discardHandler 丢弃所有日志的 Handler
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
