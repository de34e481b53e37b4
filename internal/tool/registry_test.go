package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDefinition(name string, requiresConfirmation bool) *Definition {
	return &Definition{
		Name:                 name,
		Description:          "echoes its input",
		Schema:               json.RawMessage(`{"type":"object"}`),
		RequiresConfirmation: requiresConfirmation,
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			return &Result{Value: string(raw)}, nil
		},
	}
}

func TestRegistryBuiltinLookupAndCall(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin(echoDefinition("ping", false))

	def, ok := r.Get("ping")
	require.True(t, ok)
	assert.Equal(t, "ping", def.Name)

	res, err := r.Call(newTestToolContext(), "ping", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, res.Value)
}

func TestRegistryCallUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(newTestToolContext(), "missing", json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestRegistryRequiresConfirmation(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin(echoDefinition("write_file", true))
	r.RegisterBuiltin(echoDefinition("read_file", false))

	assert.True(t, r.RequiresConfirmation("write_file"))
	assert.False(t, r.RequiresConfirmation("read_file"))
}

func TestRegistryMCPNameConflictResolution(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin(echoDefinition("grep", false))

	r.SetMCPTools("search-server", []*Definition{echoDefinition("grep", false)})

	_, stillBuiltin := r.Get("grep")
	require.True(t, stillBuiltin)

	exposed, ok := r.Get("search-server__grep")
	require.True(t, ok)
	assert.Equal(t, "search-server__grep", exposed.Name)

	src, ok := r.MCPSourceOf("search-server__grep")
	require.True(t, ok)
	assert.Equal(t, "search-server", src.Server)
	assert.Equal(t, "grep", src.OriginalName)
}

func TestRegistrySetMCPToolsReplacesPreviousContribution(t *testing.T) {
	r := NewRegistry()
	r.SetMCPTools("srv", []*Definition{echoDefinition("a", false), echoDefinition("b", false)})
	r.SetMCPTools("srv", []*Definition{echoDefinition("c", false)})

	_, ok := r.Get("a")
	assert.False(t, ok)
	_, ok = r.Get("c")
	assert.True(t, ok)
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin(echoDefinition("one", false))
	r.SetMCPTools("srv", []*Definition{echoDefinition("two", false)})

	defs := r.List()
	assert.Len(t, defs, 2)
}
