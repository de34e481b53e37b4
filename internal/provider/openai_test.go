package provider_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/provider"
)

func TestOpenAIProvider_Generate_StreamsText(t *testing.T) {
	mock := NewMockLLMServer(&MockLLMConfig{
		Responses: map[string]MockResponse{
			"hello": {Content: "hi there, how can I help?"},
		},
		Settings: MockSettings{EnableStreaming: true},
	})
	defer mock.Close()

	p, err := provider.NewOpenAIProvider(provider.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: mock.URL() + "/v1",
		Model:   "gpt-4o",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := p.Generate(ctx, &provider.GenerateRequest{
		Messages: []provider.Part{provider.UserText("hello")},
	})
	require.NoError(t, err)

	var text string
	var sawFinish bool
	for part := range out {
		switch part.Type {
		case provider.PartText:
			text += part.Text
		case provider.PartFinishReason:
			sawFinish = true
		case provider.PartError:
			t.Fatalf("unexpected error part: %v", part.Err)
		}
	}

	assert.Contains(t, text, "hi there")
	assert.True(t, sawFinish)
}

func TestOpenAIProvider_Generate_ToolCall(t *testing.T) {
	mock := NewMockLLMServer(&MockLLMConfig{
		Responses: map[string]MockResponse{
			"weather": {
				ToolCalls: []MockToolCall{
					{ID: "call_1", Type: "function", Function: MockFunctionCall{Name: "get_weather", Arguments: `{"city":"SF"}`}},
				},
			},
		},
		Settings: MockSettings{EnableStreaming: true},
	})
	defer mock.Close()

	p, err := provider.NewOpenAIProvider(provider.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: mock.URL() + "/v1",
	})
	require.NoError(t, err)

	out, err := p.Generate(context.Background(), &provider.GenerateRequest{
		Messages: []provider.Part{provider.UserText("weather")},
		Tools: []provider.ToolInfo{
			{Name: "get_weather", Description: "gets weather", Schema: []byte(`{"type":"object","properties":{"city":{"type":"string"}}}`)},
		},
	})
	require.NoError(t, err)

	var call *provider.FunctionCall
	for part := range out {
		if part.Type == provider.PartFunctionCall {
			call = part.FunctionCall
		}
	}

	require.NotNil(t, call)
	assert.Equal(t, "get_weather", call.Name)
	assert.Equal(t, "SF", call.Args["city"])
}

func TestOpenAIProvider_Models_IncludesGPT5(t *testing.T) {
	p, err := provider.NewOpenAIProvider(provider.OpenAIConfig{APIKey: "test-key"})
	require.NoError(t, err)

	var found bool
	for _, m := range p.Models() {
		if m.ID == "gpt-5" {
			found = true
			assert.True(t, m.SupportsReasoning)
		}
	}
	assert.True(t, found)
}
