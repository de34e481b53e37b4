package provider

import (
	"os"

	"github.com/agentserver/agentserver/internal/apierror"
)

// ArkConfig configures an ArkProvider, which reuses the OpenAI-compatible
// client since Volcengine ARK speaks the same chat-completions wire format.
type ArkConfig struct {
	APIKey    string
	BaseURL   string
	Model     string // Endpoint ID on the ARK platform.
	MaxTokens int
}

const defaultArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// NewArkProvider constructs a Provider backed by Volcengine ARK, implemented
// as an OpenAIProvider pointed at ARK's endpoint.
func NewArkProvider(config ArkConfig) (*OpenAIProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ARK_API_KEY")
	}
	if apiKey == "" {
		return nil, apierror.BadRequest("ark: API key is required")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = os.Getenv("ARK_MODEL_ID")
	}
	if modelID == "" {
		return nil, apierror.BadRequest("ark: model (endpoint ID) is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("ARK_BASE_URL")
	}
	if baseURL == "" {
		baseURL = defaultArkBaseURL
	}

	p, err := NewOpenAIProvider(OpenAIConfig{
		ID:        "ark",
		Label:     "ARK",
		APIKey:    apiKey,
		BaseURL:   baseURL,
		Model:     modelID,
		MaxTokens: config.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	p.models = arkModels(modelID)
	return p, nil
}

// arkModels returns the single model entry for the configured endpoint;
// ARK bills by endpoint contract rather than a published per-model rate.
func arkModels(endpointID string) []Model {
	return []Model{
		{
			ID:              endpointID,
			Name:            "ARK Model",
			ProviderID:      "ark",
			ContextLength:   128000,
			MaxOutputTokens: 4096,
			SupportsTools:   true,
			SupportsVision:  true,
		},
	}
}
