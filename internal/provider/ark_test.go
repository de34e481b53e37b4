package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/provider"
)

func TestArkProvider_Generate_StreamsText(t *testing.T) {
	mock := NewMockLLMServer(&MockLLMConfig{
		Responses: map[string]MockResponse{
			"hello": {Content: "ark says hi"},
		},
		Settings: MockSettings{EnableStreaming: true},
	})
	defer mock.Close()

	p, err := provider.NewArkProvider(provider.ArkConfig{
		APIKey:  "test-key",
		BaseURL: mock.URL() + "/v1",
		Model:   "ep-20240101-abcde",
	})
	require.NoError(t, err)
	assert.Equal(t, "ark", p.ID())
	assert.Equal(t, "ARK", p.Name())

	models := p.Models()
	require.Len(t, models, 1)
	assert.Equal(t, "ep-20240101-abcde", models[0].ID)

	out, err := p.Generate(context.Background(), &provider.GenerateRequest{
		Messages: []provider.Part{provider.UserText("hello")},
	})
	require.NoError(t, err)

	var text string
	for part := range out {
		if part.Type == provider.PartText {
			text += part.Text
		}
		if part.Type == provider.PartError {
			t.Fatalf("unexpected error part: %v", part.Err)
		}
	}
	assert.Contains(t, text, "ark says hi")
}

func TestArkProvider_RequiresModel(t *testing.T) {
	t.Setenv("ARK_MODEL_ID", "")
	t.Setenv("ARK_API_KEY", "")
	_, err := provider.NewArkProvider(provider.ArkConfig{APIKey: "test-key"})
	assert.Error(t, err)
}
