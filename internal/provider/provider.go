// Package provider presents every supported LLM as a single streaming
// interface: Generate(model, messages, tools, systemPrompt) -> stream<Part>.
// The Turn engine (C6) never talks to a provider SDK directly; it only
// drives this interface and persists whatever Parts arrive.
package provider

import (
	"context"
	"encoding/json"
)

// Model describes one model a provider exposes.
type Model struct {
	ID                string
	Name              string
	ProviderID        string
	ContextLength     int
	MaxOutputTokens   int
	SupportsTools     bool
	SupportsVision    bool
	SupportsReasoning bool
	InputPrice        float64
	OutputPrice       float64
}

// ToolInfo is a tool definition offered to the model, stripped of the
// handler the Tool registry (C4) keeps to itself.
type ToolInfo struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// GenerateRequest is one call to Generate.
type GenerateRequest struct {
	Model        string
	Messages     []Part
	Tools        []ToolInfo
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// Provider is an LLM backend: Anthropic, an OpenAI-compatible endpoint, or
// Gemini. Generate streams Parts on the returned channel and closes it when
// the model reaches a terminal state or the request fails; a failure is
// reported as a final Part with Type PartError rather than a returned err,
// except for request-construction failures (bad tool schema, etc.) and,
// for the OpenAI provider, failures to establish the stream, which are
// returned as err before any goroutine starts.
type Provider interface {
	ID() string
	Name() string
	Models() []Model
	Generate(ctx context.Context, req *GenerateRequest) (<-chan Part, error)
}
