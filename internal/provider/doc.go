// Package provider presents every supported LLM backend behind one
// streaming interface: Generate(model, messages, tools, systemPrompt) ->
// stream<Part>. Callers never see Anthropic SSE events, go-openai chunks,
// or genai response iterators directly; they drive Provider and persist
// whatever Parts arrive.
//
// # Supported providers
//
// Anthropic (Claude), via the native github.com/anthropics/anthropic-sdk-go
// client. OpenAI and any OpenAI-compatible endpoint (local servers,
// Volcengine ARK, OpenRouter-style gateways), via github.com/sashabaranov/go-openai
// with a BaseURL override. Gemini, via google.golang.org/genai, either with
// a bare API key or with an OAuth account's token source through the
// account pool.
//
//	anthropicProvider, err := NewAnthropicProvider(AnthropicConfig{
//	    APIKey:    "sk-...",
//	    Model:     "claude-sonnet-4-20250514",
//	    MaxTokens: 8192,
//	})
//
//	openaiProvider, err := NewOpenAIProvider(OpenAIConfig{
//	    APIKey:    "sk-...",
//	    Model:     "gpt-4o",
//	    MaxTokens: 4096,
//	})
//
// # Account/credential resolution
//
// Quota-bearing providers (Gemini OAuth accounts) resolve through an
// AccountPool: least-recently-used account whose quota has not exhausted,
// round-robin on tie. API-key providers have effectively unbounded quota
// and are simply looked up by ID through the Registry.
//
// # Registry
//
//	registry, err := InitializeProviders(ctx, config)
//	provider, err := registry.Get("anthropic")
//	model, err := registry.DefaultModel()
//
// # Streaming
//
//	parts, err := provider.Generate(ctx, &GenerateRequest{
//	    Model:    "claude-sonnet-4-20250514",
//	    Messages: history,
//	    Tools:    tools,
//	})
//	for part := range parts {
//	    switch part.Type {
//	    case PartText:
//	        // ...
//	    case PartError:
//	        // terminal; the channel closes after this Part
//	    }
//	}
//
// # Errors
//
// Generate returns an error for request-construction failures (bad tool
// schema, missing credentials), and the OpenAI-compatible provider also
// returns one when it cannot establish the stream after its connection
// retries; once the returned channel is open,
// any later failure is reported as a single terminal Part with Type
// PartError, classified through internal/apierror so the Turn engine can
// map it to the right SSE event and retry policy.
package provider
