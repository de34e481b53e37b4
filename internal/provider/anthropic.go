package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentserver/agentserver/internal/apierror"
)

// AnthropicProvider drives Claude models through the native Anthropic SDK.
type AnthropicProvider struct {
	client anthropic.Client
	config AnthropicConfig
	models []Model
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	ID         string
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
}

// NewAnthropicProvider constructs an AnthropicProvider, falling back to
// ANTHROPIC_API_KEY when no key is configured.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		config: config,
		models: anthropicModels(),
	}, nil
}

func (p *AnthropicProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "anthropic"
}

func (p *AnthropicProvider) Name() string { return "Anthropic" }

func (p *AnthropicProvider) Models() []Model { return p.models }

// Generate streams a Claude completion. Idempotent reconnects are retried
// only while no Part of this attempt has reached the caller yet; once
// streaming has started, a failure becomes a terminal error Part instead
// of silently restarting mid-conversation.
func (p *AnthropicProvider) Generate(ctx context.Context, req *GenerateRequest) (<-chan Part, error) {
	messages, err := anthropicMessages(req.Messages)
	if err != nil {
		return nil, apierror.BadRequest("anthropic: convert messages: %v", err)
	}
	tools, err := anthropicTools(req.Tools)
	if err != nil {
		return nil, apierror.BadRequest("anthropic: convert tools: %v", err)
	}

	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	out := make(chan Part)
	go p.stream(ctx, params, out)
	return out, nil
}

func (p *AnthropicProvider) stream(ctx context.Context, params anthropic.MessageNewParams, out chan<- Part) {
	defer close(out)

	var currentCall *FunctionCall
	var currentInput strings.Builder
	var inputTokens int64

	for attempt := 0; ; attempt++ {
		started := false
		stream := p.client.Messages.NewStreaming(ctx, params)

		for stream.Next() {
			started = true
			event := stream.Current()

			switch event.Type {
			case "message_start":
				ms := event.AsMessageStart()
				if ms.Message.Usage.InputTokens > 0 {
					inputTokens = ms.Message.Usage.InputTokens
				}

			case "content_block_start":
				block := event.AsContentBlockStart().ContentBlock
				if block.Type == "tool_use" {
					toolUse := block.AsToolUse()
					currentCall = &FunctionCall{ID: toolUse.ID, Name: toolUse.Name}
					currentInput.Reset()
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						out <- Part{Type: PartText, Role: "model", Text: delta.Text}
					}
				case "thinking_delta":
					if delta.Thinking != "" {
						out <- Part{Type: PartThought, Role: "model", Text: delta.Thinking}
					}
				case "input_json_delta":
					currentInput.WriteString(delta.PartialJSON)
				}

			case "content_block_stop":
				if currentCall != nil {
					var args map[string]any
					if currentInput.Len() > 0 {
						_ = json.Unmarshal([]byte(currentInput.String()), &args)
					}
					currentCall.Args = args
					out <- Part{Type: PartFunctionCall, Role: "model", FunctionCall: currentCall}
					currentCall = nil
				}

			case "message_delta":
				md := event.AsMessageDelta()
				if md.Usage.OutputTokens > 0 {
					out <- Part{Type: PartTokenCount, TokenCount: inputTokens + md.Usage.OutputTokens}
				}
				if md.Delta.StopReason != "" {
					out <- Part{Type: PartFinishReason, FinishReason: string(md.Delta.StopReason)}
				}
			}
		}

		if err := stream.Err(); err != nil {
			classified := classifyAnthropicError(err)
			if !started && isTransientNet(classified) && attempt < p.config.MaxRetries {
				select {
				case <-ctx.Done():
					out <- Part{Type: PartError, Err: ctx.Err()}
					return
				case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
					continue
				}
			}
			out <- Part{Type: PartError, Err: classified}
		}
		return
	}
}

func anthropicModels() []Model {
	return []Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 64000, SupportsTools: true, SupportsVision: true, InputPrice: 3.0, OutputPrice: 15.0},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 32000, SupportsTools: true, SupportsVision: true, SupportsReasoning: true, InputPrice: 15.0, OutputPrice: 75.0},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 8192, SupportsTools: true, SupportsVision: true, InputPrice: 3.0, OutputPrice: 15.0},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 8192, SupportsTools: true, SupportsVision: true, InputPrice: 0.8, OutputPrice: 4.0},
	}
}

// anthropicMessages groups the flat curated-history Parts into Anthropic's
// role-grouped MessageParam list: consecutive parts sharing a role collapse
// into one message with multiple content blocks, matching how Anthropic
// expects a tool_use/tool_result pair to sit across adjacent turns.
func anthropicMessages(parts []Part) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	var blocks []anthropic.ContentBlockParamUnion
	blockRole := ""

	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if blockRole == "model" {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}

	for _, part := range parts {
		role := anthropicRole(part.Role)
		if len(blocks) > 0 && role != blockRole {
			flush()
		}
		blockRole = role

		switch part.Type {
		case PartText, PartThought:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case PartFunctionCall:
			if part.FunctionCall == nil {
				continue
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(part.FunctionCall.ID, part.FunctionCall.Args, part.FunctionCall.Name))
		case PartFunctionResponse:
			if part.FunctionResponse == nil {
				continue
			}
			content, err := json.Marshal(part.FunctionResponse.Response)
			if err != nil {
				return nil, fmt.Errorf("marshal function response %s: %w", part.FunctionResponse.Name, err)
			}
			blocks = append(blocks, anthropic.NewToolResultBlock(part.FunctionResponse.ID, string(content), false))
		}
	}
	flush()

	return result, nil
}

func anthropicRole(role string) string {
	if role == "model" {
		return "model"
	}
	return "user"
}

func anthropicTools(tools []ToolInfo) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Schema) > 0 {
			if err := json.Unmarshal(t.Schema, &schema); err != nil {
				return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
			}
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		result = append(result, param)
	}
	return result, nil
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 400:
			return apierror.BadRequest("anthropic: %v", err)
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return apierror.New(apierror.KindUnauthorized, fmt.Sprintf("anthropic: %v", err))
		case apiErr.StatusCode == 404:
			return apierror.NotFound("anthropic model or endpoint: %v", err)
		case apiErr.StatusCode == 429:
			return apierror.New(apierror.KindRateLimited, fmt.Sprintf("anthropic: %v", err))
		case apiErr.StatusCode >= 500:
			return apierror.New(apierror.KindTransientNet, fmt.Sprintf("anthropic: %v", err))
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") {
		return apierror.New(apierror.KindTransientNet, fmt.Sprintf("anthropic: %v", err))
	}
	return apierror.Wrap(apierror.KindInternal, "anthropic", err)
}

func isTransientNet(err error) bool {
	var ae *apierror.Error
	if errors.As(err, &ae) {
		return ae.Kind == apierror.KindTransientNet
	}
	return false
}
