package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-peerview/internal/core/peerview"
	"github.com/dep2p/go-peerview/pkg/interfaces"
)

// TestNewConfig 测试默认配置有效
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, peerview.DefaultConfig(), cfg.Peerview.ToPeerview())
	assert.Equal(t, TransportQUIC, cfg.Transport.Kind)
	assert.Equal(t, filepath.Join("data", "adv.db"), cfg.Discovery.ToAdvStore().Path)
}

// TestDuration_Parse 测试 Duration 的 JSON 与 YAML 解析
func TestDuration_Parse(t *testing.T) {
	cfg, err := FromJSON([]byte(`{"peerview": {"maintain_interval": "30s", "ping_due": 1000000000}}`))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Peerview.MaintainInterval.Duration())
	assert.Equal(t, time.Second, cfg.Peerview.PingDue.Duration())
	// 未出现的字段保持默认
	assert.Equal(t, 15*time.Second, cfg.Peerview.AddInterval.Duration())

	cfg, err = FromYAML([]byte("peerview:\n  add_interval: 1m\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Peerview.AddInterval.Duration())

	_, err = FromJSON([]byte(`{"peerview": {"add_interval": "soon"}}`))
	assert.Error(t, err)
	_, err = FromYAML([]byte("peerview:\n  add_interval: [1]\n"))
	assert.Error(t, err)
}

// TestConfig_Validate 测试验证汇总多个错误
func TestConfig_Validate(t *testing.T) {
	cfg := NewConfig()
	cfg.Scheduler.Workers = 0
	cfg.Transport.Kind = "carrier-pigeon"
	cfg.Seeds = []Seed{{}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler")

	cfg = NewConfig()
	cfg.Transport.AnnounceAddrs = []string{"0.0.0.0:9700"}
	assert.Error(t, cfg.Validate())
	cfg.Transport.AnnounceAddrs = []string{"203.0.113.7:9700"}
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"203.0.113.7:9700"}, cfg.Transport.ToQUIC().AnnounceAddrs)

	cfg = NewConfig()
	cfg.Scheduler.Workers = 0
	cfg.Transport.Kind = "carrier-pigeon"
	cfg.Seeds = []Seed{{}}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler")
	assert.Contains(t, err.Error(), "transport")
	assert.Contains(t, err.Error(), "seeds[0]")

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
	assert.Panics(t, func() { MustValidate(cfg) })
}

// TestLoad 测试按扩展名加载配置文件
func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
transport:
  listen_addr: 127.0.0.1:9800
seeds:
  - address: quic://10.0.0.1:9700
  - peer_id: urn:jxta:abc
passive: true
`), 0o600))
	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9800", cfg.Transport.ListenAddr)
	assert.True(t, cfg.Passive)
	assert.Equal(t, []interfaces.Destination{
		interfaces.ToAddress("quic://10.0.0.1:9700"),
		interfaces.ToPeer("urn:jxta:abc"),
	}, cfg.SeedDestinations())

	jsonPath := filepath.Join(dir, "node.json")
	data, err := cfg.ToJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(jsonPath, data, 0o600))
	again, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)

	badPath := filepath.Join(dir, "node.toml")
	require.NoError(t, os.WriteFile(badPath, nil, 0o600))
	_, err = Load(badPath)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

// TestDebugConfig_Validate 测试自省配置校验
func TestDebugConfig_Validate(t *testing.T) {
	cfg := NewConfig()
	assert.False(t, cfg.Debug.Introspect)
	assert.NoError(t, cfg.Validate())

	cfg.Debug.Introspect = true
	cfg.Debug.IntrospectAddr = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug")
}
