package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/agentserver/agentserver/pkg/types"
)

// Registry holds every configured Provider, looked up by ID for dispatch and
// by model name for resolve(model_name, task) -> account selection.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry creates an empty Registry bound to config.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider to the registry, replacing any existing one
// with the same ID.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns every registered provider.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, model := range provider.Models() {
		if model.ID == modelID {
			m := model
			return &m, nil
		}
	}

	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns every model across every provider, ranked by
// modelPriority so callers presenting a picker see the strongest models
// first. Models of equal priority keep their provider's listing order.
func (r *Registry) AllModels() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}

	sort.SliceStable(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})

	return models
}

// DefaultModel returns the configured default model, falling back to
// Claude Sonnet if available and then to whatever the highest-priority
// registered model is.
func (r *Registry) DefaultModel() (*Model, error) {
	if r.config != nil && r.config.DefaultModel != "" {
		providerID, modelID := ParseModelString(r.config.DefaultModel)
		return r.GetModel(providerID, modelID)
	}

	if model, err := r.GetModel("anthropic", "claude-sonnet-4-20250514"); err == nil {
		return model, nil
	}

	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ParseModelString parses "provider/model" format, treating a bare model
// name (no slash) as having no fixed provider.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// modelPriority ranks models for display and default selection.
func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gpt-5"):
		return 100
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "claude-3-5"):
		return 75
	case strings.Contains(modelID, "gemini-2"):
		return 70
	default:
		return 50
	}
}

// InitializeProviders builds and registers every provider named in config,
// then auto-registers Anthropic/OpenAI/Gemini from well-known environment
// variables for anything left unconfigured.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)
	configured := make(map[string]bool)

	for name, cfg := range config.Provider {
		if !cfg.Enabled {
			continue
		}
		configured[name] = true

		var provider Provider
		var err error

		switch name {
		case "anthropic", "claude":
			provider, err = NewAnthropicProvider(AnthropicConfig{
				ID:        name,
				APIKey:    cfg.APIKey,
				BaseURL:   cfg.BaseURL,
				MaxTokens: 8192,
			})
		case "ark":
			provider, err = NewArkProvider(ArkConfig{
				APIKey:    cfg.APIKey,
				BaseURL:   cfg.BaseURL,
				MaxTokens: 4096,
			})
		case "gemini", "google":
			provider, err = NewGeminiProvider(ctx, GeminiConfig{
				ID:        name,
				APIKey:    cfg.APIKey,
				MaxTokens: 8192,
			})
		default:
			// Unknown names are treated as OpenAI-compatible: the cheapest way
			// to add a self-hosted or third-party endpoint is to point BaseURL
			// at it without teaching the registry a new case.
			if cfg.APIKey != "" || cfg.BaseURL != "" {
				provider, err = NewOpenAIProvider(OpenAIConfig{
					ID:        name,
					Label:     name,
					APIKey:    cfg.APIKey,
					BaseURL:   cfg.BaseURL,
					MaxTokens: 4096,
				})
			}
		}

		if err != nil {
			slog.Warn("provider init failed", "provider", name, "error", err)
			continue
		}
		if provider != nil {
			registry.Register(provider)
		}
	}

	autoRegister(registry, configured, "anthropic", func() (Provider, error) {
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, nil
		}
		return NewAnthropicProvider(AnthropicConfig{ID: "anthropic", APIKey: apiKey, MaxTokens: 8192})
	})
	autoRegister(registry, configured, "openai", func() (Provider, error) {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, nil
		}
		return NewOpenAIProvider(OpenAIConfig{ID: "openai", APIKey: apiKey, MaxTokens: 4096})
	})
	autoRegister(registry, configured, "gemini", func() (Provider, error) {
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return nil, nil
		}
		return NewGeminiProvider(ctx, GeminiConfig{ID: "gemini", MaxTokens: 8192})
	})

	return registry, nil
}

func autoRegister(registry *Registry, configured map[string]bool, name string, build func() (Provider, error)) {
	if configured[name] {
		return
	}
	provider, err := build()
	if err != nil {
		slog.Warn("provider auto-register failed", "provider", name, "error", err)
		return
	}
	if provider == nil {
		return
	}
	registry.Register(provider)
	slog.Info("auto-registered provider from environment", "provider", name)
}
