package logger

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutput_ExistingLogger(t *testing.T) {
	log := Logger("test.output")

	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log.Info("after switch", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "after switch")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "subsystem=test.output")
}

func TestParseLevelConfig(t *testing.T) {
	cfg := &Config{DefaultLevel: slog.LevelInfo, SubsystemLevels: map[string]slog.Level{}}
	require.NoError(t, parseLevelConfig(cfg, "core=debug, discovery.mdns=warn,error"))

	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("core.connmgr"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("discovery.mdns"))
	assert.Equal(t, slog.LevelError, cfg.LevelForSubsystem("host"))

	assert.Error(t, parseLevelConfig(cfg, "core=loud"))
}

func TestApply(t *testing.T) {
	defer ResetConfig()

	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log := Logger("test.apply")
	require.NoError(t, Apply("test.apply=error", "json"))

	log.Warn("suppressed")
	assert.Empty(t, buf.String())

	log.Error("visible", "k", 1)
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "{"), "JSON 格式输出: %s", out)
	assert.Contains(t, out, `"msg":"visible"`)

	assert.Error(t, Apply("", "xml"))
}
