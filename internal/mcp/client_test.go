package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/tool"
	"github.com/agentserver/agentserver/pkg/types"
)

func TestNewClientEmpty(t *testing.T) {
	c := NewClient()
	assert.Equal(t, 0, c.ServerCount())
	assert.Equal(t, 0, c.ConnectedCount())
	assert.Empty(t, c.Tools())
}

func TestAddServerDisabled(t *testing.T) {
	c := NewClient()
	err := c.AddServer(context.Background(), "disabled", &Config{Enabled: false})
	require.NoError(t, err)

	status, err := c.GetServer("disabled")
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, status.Status)
	assert.Equal(t, 0, c.ConnectedCount())
}

func TestAddServerDuplicateName(t *testing.T) {
	c := NewClient()
	require.NoError(t, c.AddServer(context.Background(), "dup", &Config{Enabled: false}))
	err := c.AddServer(context.Background(), "dup", &Config{Enabled: false})
	assert.Error(t, err)
}

func TestServerToolsUnknownServer(t *testing.T) {
	c := NewClient()
	_, err := c.ServerTools("missing")
	assert.Error(t, err)
}

func TestRemoveServerNotFound(t *testing.T) {
	c := NewClient()
	assert.Error(t, c.RemoveServer("ghost"))
}

func TestSanitizeToolName(t *testing.T) {
	assert.Equal(t, "my_server", sanitizeToolName("my-server"))
	assert.Equal(t, "calc_1", sanitizeToolName("calc.1"))
	assert.Equal(t, "plain", sanitizeToolName("plain"))
}

func TestFromConfigRemote(t *testing.T) {
	cfg := FromConfig(types.MCPConfig{
		Enabled: true,
		URL:     "http://localhost:9000/mcp",
		Timeout: 2000,
	})
	assert.Equal(t, TransportTypeRemote, cfg.Type)
	assert.Equal(t, "http://localhost:9000/mcp", cfg.URL)
	assert.Equal(t, 2000, cfg.Timeout)
}

func TestFromConfigStdio(t *testing.T) {
	cfg := FromConfig(types.MCPConfig{
		Enabled: true,
		Command: "python",
		Args:    []string{"-m", "my_server"},
		Env:     map[string]string{"FOO": "bar"},
	})
	assert.Equal(t, TransportTypeStdio, cfg.Type)
	assert.Equal(t, []string{"python", "-m", "my_server"}, cfg.Command)
	assert.Equal(t, "bar", cfg.Environment["FOO"])
}

func TestHarvestToolsUnknownServer(t *testing.T) {
	registry := tool.NewRegistry()
	err := HarvestTools(context.Background(), NewClient(), "missing", registry)
	assert.Error(t, err)
}

func TestHarvestedDefinitionSchemaFallback(t *testing.T) {
	def := harvestedDefinition(NewClient(), "srv", Tool{Name: "ping", Description: "pings"})
	assert.Equal(t, "ping", def.Name)
	assert.JSONEq(t, `{"type":"object"}`, string(def.Schema))
}

func TestHarvestedDefinitionHandlerErrorsWithoutConnection(t *testing.T) {
	def := harvestedDefinition(NewClient(), "srv", Tool{Name: "ping", Description: "pings"})
	_, err := def.Handler(&tool.Context{Ctx: context.Background()}, json.RawMessage(`{}`))
	assert.Error(t, err)
}
