package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentserver/agentserver/internal/apierror"
)

// OpenAIProvider drives OpenAI and OpenAI-compatible endpoints (local
// servers, Azure-style gateways) through the go-openai client.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
	models []Model
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	ID         string
	Label      string
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
}

// NewOpenAIProvider constructs an OpenAIProvider, falling back to
// OPENAI_API_KEY when no key is configured. BaseURL lets the same
// implementation serve OpenAI-compatible gateways.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && config.BaseURL == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.Model == "" {
		config.Model = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		models: openAIModels(),
	}, nil
}

func (p *OpenAIProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "openai"
}

func (p *OpenAIProvider) Name() string {
	if p.config.Label != "" {
		return p.config.Label
	}
	return "OpenAI"
}

func (p *OpenAIProvider) Models() []Model { return p.models }

// Generate streams a chat completion, retrying idempotently on transient
// network failures while establishing the stream. A failure to establish
// the stream, once those retries are spent, is returned as an error; a
// failure after the stream is open becomes a terminal error Part.
func (p *OpenAIProvider) Generate(ctx context.Context, req *GenerateRequest) (<-chan Part, error) {
	messages := openAIMessages(req.Messages, req.SystemPrompt)

	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	if maxTokens > 0 {
		chatReq.MaxTokens = maxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = openAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err == nil {
			stream = s
			break
		}
		classified := classifyOpenAIError(err)
		if !isTransientNet(classified) || attempt == p.config.MaxRetries {
			return nil, classified
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}

	out := make(chan Part)
	go processOpenAIStream(stream, out)
	return out, nil
}

func processOpenAIStream(stream *openai.ChatCompletionStream, out chan<- Part) {
	defer close(out)
	defer stream.Close()

	type building struct {
		id, name string
		args     strings.Builder
	}
	calls := map[int]*building{}
	order := []int{}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				for _, idx := range order {
					b := calls[idx]
					if b == nil || b.name == "" {
						continue
					}
					var args map[string]any
					if b.args.Len() > 0 {
						_ = json.Unmarshal([]byte(b.args.String()), &args)
					}
					out <- Part{Type: PartFunctionCall, Role: "model", FunctionCall: &FunctionCall{ID: b.id, Name: b.name, Args: args}}
				}
				return
			}
			out <- Part{Type: PartError, Err: classifyOpenAIError(err)}
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			out <- Part{Type: PartText, Role: "model", Text: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			b, ok := calls[idx]
			if !ok {
				b = &building{}
				calls[idx] = b
				order = append(order, idx)
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Function.Name != "" {
				b.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				b.args.WriteString(tc.Function.Arguments)
			}
		}
		if choice.FinishReason != "" {
			out <- Part{Type: PartFinishReason, FinishReason: string(choice.FinishReason)}
		}
	}
}

// openAIMessages flattens curated-history Parts into OpenAI's chat-message
// list: function calls attach to the assistant message that precedes their
// response, and each function response becomes its own tool-role message.
func openAIMessages(parts []Part, systemPrompt string) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	if systemPrompt != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}

	var pendingAssistant *openai.ChatCompletionMessage
	flush := func() {
		if pendingAssistant != nil {
			result = append(result, *pendingAssistant)
			pendingAssistant = nil
		}
	}

	for _, part := range parts {
		switch part.Type {
		case PartText, PartThought:
			if part.Role == "model" {
				if pendingAssistant == nil {
					pendingAssistant = &openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
				}
				pendingAssistant.Content += part.Text
			} else {
				flush()
				result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: part.Text})
			}
		case PartFunctionCall:
			if part.FunctionCall == nil {
				continue
			}
			if pendingAssistant == nil {
				pendingAssistant = &openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			}
			args, _ := json.Marshal(part.FunctionCall.Args)
			pendingAssistant.ToolCalls = append(pendingAssistant.ToolCalls, openai.ToolCall{
				ID:   part.FunctionCall.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		case PartFunctionResponse:
			flush()
			if part.FunctionResponse == nil {
				continue
			}
			content, _ := json.Marshal(part.FunctionResponse.Response)
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(content),
				ToolCallID: part.FunctionResponse.ID,
			})
		}
	}
	flush()

	return result
}

func openAITools(tools []ToolInfo) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.Schema) > 0 {
			if err := json.Unmarshal(t.Schema, &schema); err != nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return result
}

func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 400:
			return apierror.BadRequest("openai: %v", err)
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return apierror.New(apierror.KindUnauthorized, fmt.Sprintf("openai: %v", err))
		case apiErr.HTTPStatusCode == 404:
			return apierror.NotFound("openai model or endpoint: %v", err)
		case apiErr.HTTPStatusCode == 429:
			return apierror.New(apierror.KindRateLimited, fmt.Sprintf("openai: %v", err))
		case apiErr.HTTPStatusCode >= 500:
			return apierror.New(apierror.KindTransientNet, fmt.Sprintf("openai: %v", err))
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "eof") {
		return apierror.New(apierror.KindTransientNet, fmt.Sprintf("openai: %v", err))
	}
	return apierror.Wrap(apierror.KindInternal, "openai", err)
}

// openAIModels returns the list of OpenAI models.
func openAIModels() []Model {
	return []Model{
		{ID: "gpt-5", Name: "GPT-5", ProviderID: "openai", ContextLength: 272000, MaxOutputTokens: 128000, SupportsTools: true, SupportsVision: true, SupportsReasoning: true, InputPrice: 1.25, OutputPrice: 10.0},
		{ID: "gpt-5-mini", Name: "GPT-5 Mini", ProviderID: "openai", ContextLength: 272000, MaxOutputTokens: 128000, SupportsTools: true, SupportsVision: true, SupportsReasoning: true, InputPrice: 0.25, OutputPrice: 2.0},
		{ID: "gpt-4o", Name: "GPT-4o", ProviderID: "openai", ContextLength: 128000, MaxOutputTokens: 16384, SupportsTools: true, SupportsVision: true, InputPrice: 2.5, OutputPrice: 10.0},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ProviderID: "openai", ContextLength: 128000, MaxOutputTokens: 16384, SupportsTools: true, SupportsVision: true, InputPrice: 0.15, OutputPrice: 0.6},
	}
}
