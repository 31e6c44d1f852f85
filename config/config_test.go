package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
watchloop:
  enabled: true
mcp:
  servers:
    kubernetes:
      type: stdio
      command: /usr/local/bin/k8s-mcp-server
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultWatchLoopInterval, cfg.WatchLoop.Interval())
	assert.Equal(t, DefaultApprovalTimeout, cfg.Approval.Timeout())
	assert.Equal(t, DefaultAlertmanagerAddr, cfg.Alertmanager.ListenAddr)
	assert.True(t, cfg.WatchLoop.Enabled)
	assert.Equal(t, DefaultToolCallTimeout, cfg.MCP.CallTimeout())
}

func TestMCPCallTimeoutHonorsConfiguredValue(t *testing.T) {
	path := writeTempConfig(t, `
mcp:
  call_timeout_seconds: 5
  servers:
    kubernetes:
      type: stdio
      command: /usr/local/bin/k8s-mcp-server
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.MCP.CallTimeout())
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	path := writeTempConfig(t, `
mcp:
  servers:
    bogus:
      type: websocket
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsStdioWithoutCommand(t *testing.T) {
	path := writeTempConfig(t, `
mcp:
  servers:
    kubernetes:
      type: stdio
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("MCP_API_KEY", "secret-value")
	path := writeTempConfig(t, `
mcp:
  servers:
    remote:
      type: sse
      url: https://example.internal/mcp
      apiKey: "${MCP_API_KEY}"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", cfg.MCP.Servers["remote"].APIKey)
}
