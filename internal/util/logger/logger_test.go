package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSetOutput 测试输出重定向
func TestSetOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("test/output")
	log.Info("test message", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "test message")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "subsystem=test/output")
}

// TestConfig_LevelFor 测试分层级别查找
func TestConfig_LevelFor(t *testing.T) {
	cfg := &Config{DefaultLevel: slog.LevelWarn, SubsystemLevels: map[string]slog.Level{}}
	ParseLevels(cfg, "peerview=debug, transport/quic=error, info")

	assert.Equal(t, slog.LevelInfo, cfg.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, cfg.LevelFor("peerview"))
	assert.Equal(t, slog.LevelDebug, cfg.LevelFor("peerview/handler"))
	assert.Equal(t, slog.LevelError, cfg.LevelFor("transport/quic"))
	assert.Equal(t, slog.LevelInfo, cfg.LevelFor("transport"))
}

// TestApply 测试运行时替换配置
func TestApply(t *testing.T) {
	defer resetConfig()

	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("test/apply").With("peer", "p1")
	log.Debug("hidden")
	require.NotContains(t, buf.String(), "hidden")

	Apply(&Config{DefaultLevel: slog.LevelDebug, Format: FormatJSON})
	log.Debug("visible")

	out := buf.String()
	assert.Contains(t, out, `"msg":"visible"`)
	assert.Contains(t, out, `"peer":"p1"`)
	assert.Contains(t, out, `"level":"debug"`)
}

// TestParseFormat 测试格式解析
func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat("unknown"))
}
