package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/genai"

	"github.com/agentserver/agentserver/internal/apierror"
)

// GeminiProvider drives Gemini models through the native genai SDK, either
// with a plain API key or (for the OAuth account pool) a pre-authenticated
// oauth2.TokenSource supplied by the caller per-request.
type GeminiProvider struct {
	client *genai.Client
	config GeminiConfig
	models []Model
}

// GeminiConfig configures a GeminiProvider.
type GeminiConfig struct {
	ID        string
	APIKey    string
	Model     string
	MaxTokens int
}

// NewGeminiProvider constructs a GeminiProvider, falling back to
// GEMINI_API_KEY/GOOGLE_API_KEY when no key is configured.
func NewGeminiProvider(ctx context.Context, config GeminiConfig) (*GeminiProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		config: config,
		models: geminiModels(),
	}, nil
}

// NewGeminiProviderForAccount builds a GeminiProvider authenticated with an
// OAuth account's token source instead of a bare API key, used by the
// account pool to route a generate() call through whichever account Select
// returned.
func NewGeminiProviderForAccount(ctx context.Context, account *Account, modelName string) (*GeminiProvider, error) {
	if account == nil || account.TokenSource == nil {
		return nil, errors.New("gemini: account has no token source")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	httpClient := oauth2.NewClient(ctx, account.TokenSource)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{HTTPClient: httpClient})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client for account %s: %w", account.ID, err)
	}

	return &GeminiProvider{
		client: client,
		config: GeminiConfig{ID: "gemini:" + account.ID, Model: modelName},
		models: geminiModels(),
	}, nil
}

func (p *GeminiProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "gemini"
}

func (p *GeminiProvider) Name() string { return "Gemini" }

func (p *GeminiProvider) Models() []Model { return p.models }

// Generate streams a Gemini completion. The genai iterator surfaces errors
// inline rather than through a distinct stream-error channel, so there is no
// separate idempotent-reconnect path here: a mid-stream failure always
// becomes a terminal error Part.
func (p *GeminiProvider) Generate(ctx context.Context, req *GenerateRequest) (<-chan Part, error) {
	contents := geminiContents(req.Messages)

	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
			Role:  "user",
		}
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if len(req.Tools) > 0 {
		config.Tools = geminiTools(req.Tools)
	}

	out := make(chan Part)
	go p.stream(ctx, model, contents, config, out)
	return out, nil
}

func (p *GeminiProvider) stream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig, out chan<- Part) {
	defer close(out)

	var promptTokens int64
	emittedCallIDs := map[string]bool{}

	for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			out <- Part{Type: PartError, Err: classifyGeminiError(err)}
			return
		}
		if resp.UsageMetadata != nil {
			promptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		candidate := resp.Candidates[0]
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					callID := part.FunctionCall.ID
					if callID == "" {
						callID = part.FunctionCall.Name
					}
					if emittedCallIDs[callID] {
						continue
					}
					emittedCallIDs[callID] = true
					out <- Part{
						Type: PartFunctionCall,
						Role: "model",
						FunctionCall: &FunctionCall{
							ID:   part.FunctionCall.ID,
							Name: part.FunctionCall.Name,
							Args: part.FunctionCall.Args,
						},
					}
				case part.Text != "" && part.Thought:
					out <- Part{Type: PartThought, Role: "model", Text: part.Text}
				case part.Text != "":
					out <- Part{Type: PartText, Role: "model", Text: part.Text}
				}
			}
		}
		if resp.UsageMetadata != nil {
			out <- Part{Type: PartTokenCount, TokenCount: promptTokens + int64(resp.UsageMetadata.CandidatesTokenCount)}
		}
		if candidate.FinishReason != "" {
			out <- Part{Type: PartFinishReason, FinishReason: string(candidate.FinishReason)}
		}
	}
}

// geminiContents groups the flat curated-history Parts into Gemini's
// role-per-content list, mirroring how the Anthropic and OpenAI adapters
// fold consecutive same-role Parts into one message.
func geminiContents(parts []Part) []*genai.Content {
	var result []*genai.Content
	var pieces []*genai.Part
	currentRole := ""

	flush := func() {
		if len(pieces) == 0 {
			return
		}
		result = append(result, &genai.Content{Parts: pieces, Role: currentRole})
		pieces = nil
	}

	for _, part := range parts {
		role := "user"
		if part.Role == "model" {
			role = "model"
		}
		if len(pieces) > 0 && role != currentRole {
			flush()
		}
		currentRole = role

		switch part.Type {
		case PartText, PartThought:
			if part.Text != "" {
				pieces = append(pieces, &genai.Part{Text: part.Text})
			}
		case PartFunctionCall:
			if part.FunctionCall == nil {
				continue
			}
			pieces = append(pieces, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			}})
		case PartFunctionResponse:
			if part.FunctionResponse == nil {
				continue
			}
			pieces = append(pieces, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       part.FunctionResponse.ID,
				Name:     part.FunctionResponse.Name,
				Response: part.FunctionResponse.Response,
			}})
		}
	}
	flush()

	return result
}

func geminiTools(tools []ToolInfo) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.Schema) > 0 {
			_ = json.Unmarshal(t.Schema, &schema)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(schema),
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	return s
}

func classifyGeminiError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthenticated") || strings.Contains(msg, "permission"):
		return apierror.New(apierror.KindUnauthorized, fmt.Sprintf("gemini: %v", err))
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return apierror.NotFound("gemini model: %v", err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "quota"):
		return apierror.New(apierror.KindRateLimited, fmt.Sprintf("gemini: %v", err))
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid"):
		return apierror.BadRequest("gemini: %v", err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "unavailable") || strings.Contains(msg, "no such host"):
		return apierror.New(apierror.KindTransientNet, fmt.Sprintf("gemini: %v", err))
	}
	return apierror.Wrap(apierror.KindInternal, "gemini", err)
}

func geminiModels() []Model {
	return []Model{
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", ProviderID: "gemini", ContextLength: 1048576, MaxOutputTokens: 65536, SupportsTools: true, SupportsVision: true, SupportsReasoning: true, InputPrice: 1.25, OutputPrice: 10.0},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", ProviderID: "gemini", ContextLength: 1048576, MaxOutputTokens: 65536, SupportsTools: true, SupportsVision: true, SupportsReasoning: true, InputPrice: 0.3, OutputPrice: 2.5},
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ProviderID: "gemini", ContextLength: 1048576, MaxOutputTokens: 8192, SupportsTools: true, SupportsVision: true, InputPrice: 0.1, OutputPrice: 0.4},
	}
}
