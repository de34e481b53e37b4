package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/provider"
	"github.com/agentserver/agentserver/pkg/types"
)

func TestParseModelString(t *testing.T) {
	providerID, modelID := provider.ParseModelString("anthropic/claude-sonnet-4-20250514")
	assert.Equal(t, "anthropic", providerID)
	assert.Equal(t, "claude-sonnet-4-20250514", modelID)

	providerID, modelID = provider.ParseModelString("gpt-4o")
	assert.Equal(t, "", providerID)
	assert.Equal(t, "gpt-4o", modelID)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := provider.NewRegistry(&types.Config{})

	p, err := provider.NewAnthropicProvider(provider.AnthropicConfig{APIKey: "test-key"})
	require.NoError(t, err)
	registry.Register(p)

	got, err := registry.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got.ID())

	_, err = registry.Get("missing")
	assert.Error(t, err)
}

func TestRegistry_AllModels_SortedByPriority(t *testing.T) {
	registry := provider.NewRegistry(&types.Config{})

	a, err := provider.NewAnthropicProvider(provider.AnthropicConfig{APIKey: "test-key"})
	require.NoError(t, err)
	registry.Register(a)

	o, err := provider.NewOpenAIProvider(provider.OpenAIConfig{APIKey: "test-key"})
	require.NoError(t, err)
	registry.Register(o)

	models := registry.AllModels()
	require.NotEmpty(t, models)
	assert.Equal(t, "gpt-5", models[0].ID)
}

func TestRegistry_DefaultModel_UsesConfig(t *testing.T) {
	registry := provider.NewRegistry(&types.Config{DefaultModel: "anthropic/claude-3-5-haiku-20241022"})

	a, err := provider.NewAnthropicProvider(provider.AnthropicConfig{APIKey: "test-key"})
	require.NoError(t, err)
	registry.Register(a)

	model, err := registry.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-20241022", model.ID)
}

func TestInitializeProviders_RegistersConfiguredAndEnvFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := &types.Config{
		Provider: map[string]types.ProviderConfig{
			"anthropic": {Enabled: true, APIKey: "test-key"},
		},
	}

	registry, err := provider.InitializeProviders(context.Background(), cfg)
	require.NoError(t, err)

	_, err = registry.Get("anthropic")
	require.NoError(t, err)

	_, err = registry.Get("openai")
	assert.Error(t, err)
}
