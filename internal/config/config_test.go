package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/pkg/types"
)

func withIsolatedHome(t *testing.T) string {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "agentserver-config-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	oldHome := os.Getenv("HOME")
	oldXDGConfig := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("HOME", tmpDir)
	os.Unsetenv("XDG_CONFIG_HOME")
	t.Cleanup(func() {
		os.Setenv("HOME", oldHome)
		if oldXDGConfig != "" {
			os.Setenv("XDG_CONFIG_HOME", oldXDGConfig)
		}
	})
	return tmpDir
}

func writeGlobalConfig(t *testing.T, content string) {
	t.Helper()
	path := GlobalConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadGlobalConfig(t *testing.T) {
	withIsolatedHome(t)
	writeGlobalConfig(t, `{
		"model": "anthropic/claude-sonnet-4-20250514",
		"smallModel": "anthropic/claude-3-5-haiku-20241022",
		"provider": {
			"anthropic": {"apiKey": "sk-ant-test123", "enabled": true}
		}
	}`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.DefaultModel)
	assert.Equal(t, "anthropic/claude-3-5-haiku-20241022", cfg.SmallModel)
	assert.Equal(t, "sk-ant-test123", cfg.Provider["anthropic"].APIKey)
	assert.True(t, cfg.Provider["anthropic"].Enabled)
}

func TestLoadAppliesDefaults(t *testing.T) {
	withIsolatedHome(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4096", cfg.ListenAddr)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestJSONCComments(t *testing.T) {
	withIsolatedHome(t)
	writeGlobalConfig(t, `{
		// a line comment
		"model": "openai/gpt-5", /* inline */
		"smallModel": "openai/gpt-5-mini"
	}`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-5", cfg.DefaultModel)
	assert.Equal(t, "openai/gpt-5-mini", cfg.SmallModel)
}

func TestProjectConfigOverridesGlobal(t *testing.T) {
	withIsolatedHome(t)
	writeGlobalConfig(t, `{"model": "anthropic/claude-sonnet-4-20250514"}`)

	projectDir, err := os.MkdirTemp("", "agentserver-project-*")
	require.NoError(t, err)
	defer os.RemoveAll(projectDir)

	projectConfigDir := filepath.Join(projectDir, ".agentserver")
	require.NoError(t, os.MkdirAll(projectConfigDir, 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(projectConfigDir, "agentserver.json"),
		[]byte(`{"model": "openai/gpt-5"}`),
		0644,
	))

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-5", cfg.DefaultModel)
}

func TestMCPConfig(t *testing.T) {
	withIsolatedHome(t)
	writeGlobalConfig(t, `{
		"mcp": {
			"fs": {"enabled": true, "command": "mcp-fs", "args": ["--root", "/tmp"]},
			"remote": {"enabled": true, "url": "http://localhost:9000/mcp"}
		}
	}`)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Contains(t, cfg.MCP, "fs")
	assert.Equal(t, "mcp-fs", cfg.MCP["fs"].Command)
	assert.Equal(t, []string{"--root", "/tmp"}, cfg.MCP["fs"].Args)
	assert.Equal(t, "http://localhost:9000/mcp", cfg.MCP["remote"].URL)
}

func TestPermissionConfig(t *testing.T) {
	withIsolatedHome(t)
	writeGlobalConfig(t, `{"permission": {"requireConfirmation": ["write_file", "run_shell_command"]}}`)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg.Permission)
	assert.Equal(t, []string{"write_file", "run_shell_command"}, cfg.Permission.RequireConfirmation)
}

func TestEnvVarOverridesConfigFile(t *testing.T) {
	withIsolatedHome(t)
	writeGlobalConfig(t, `{"model": "anthropic/claude-sonnet-4-20250514"}`)

	os.Setenv("AGENTSERVER_MODEL", "openai/gpt-5")
	defer os.Unsetenv("AGENTSERVER_MODEL")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-5", cfg.DefaultModel)
}

func TestEnvVarProviderAPIKeyOnlyAppliesWhenUnset(t *testing.T) {
	withIsolatedHome(t)
	writeGlobalConfig(t, `{"provider": {"anthropic": {"apiKey": "from-file", "enabled": true}}}`)

	os.Setenv("ANTHROPIC_API_KEY", "from-env")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Provider["anthropic"].APIKey)
}

func TestEnvVarProviderAPIKeyFallsBackWhenNotConfigured(t *testing.T) {
	withIsolatedHome(t)

	os.Setenv("OPENAI_API_KEY", "from-env")
	defer os.Unsetenv("OPENAI_API_KEY")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Provider["openai"].APIKey)
	assert.True(t, cfg.Provider["openai"].Enabled)
}

func TestDataDirAndListenAddrEnvOverrides(t *testing.T) {
	withIsolatedHome(t)

	os.Setenv("AGENTSERVER_DATA_DIR", "/tmp/custom-data")
	os.Setenv("AGENTSERVER_LISTEN_ADDR", "0.0.0.0:9999")
	defer os.Unsetenv("AGENTSERVER_DATA_DIR")
	defer os.Unsetenv("AGENTSERVER_LISTEN_ADDR")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-data", cfg.DataDir)
	assert.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
}

func TestMergeConfigOverridesScalarsAndUnionsMaps(t *testing.T) {
	target := &types.Config{
		DefaultModel: "anthropic/claude-sonnet-4-20250514",
		Provider: map[string]types.ProviderConfig{
			"anthropic": {APIKey: "old-key"},
		},
	}
	source := &types.Config{
		SmallModel: "anthropic/claude-3-5-haiku-20241022",
		Provider: map[string]types.ProviderConfig{
			"openai": {APIKey: "new-key"},
		},
	}

	mergeConfig(target, source)

	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", target.DefaultModel)
	assert.Equal(t, "anthropic/claude-3-5-haiku-20241022", target.SmallModel)
	assert.Equal(t, "old-key", target.Provider["anthropic"].APIKey)
	assert.Equal(t, "new-key", target.Provider["openai"].APIKey)
}

func TestStripJSONCommentsLeavesURLsAlone(t *testing.T) {
	input := []byte(`{"url": "http://localhost:9000/mcp"} // trailing comment`)
	stripped := stripJSONComments(input)
	assert.Contains(t, string(stripped), `"url": "http://localhost:9000/mcp"`)
	assert.NotContains(t, string(stripped), "trailing comment")
}

func TestSaveAndReload(t *testing.T) {
	dir, err := os.MkdirTemp("", "agentserver-save-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cfg := &types.Config{DefaultModel: "anthropic/claude-sonnet-4-20250514"}
	path := filepath.Join(dir, "nested", "agentserver.json")
	require.NoError(t, Save(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "claude-sonnet-4-20250514")
}
