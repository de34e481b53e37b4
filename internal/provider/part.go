package provider

import (
	"github.com/agentserver/agentserver/pkg/types"
)

// PartType tags the variant held by a Part.
type PartType string

const (
	PartText             PartType = "text"
	PartThought          PartType = "thought"
	PartFunctionCall     PartType = "function_call"
	PartFunctionResponse PartType = "function_response"
	PartInlineData       PartType = "inline_data"
	PartFinishReason     PartType = "finish_reason"
	PartTokenCount       PartType = "token_count"
	PartError            PartType = "error"
)

// FunctionCall is the model's request to invoke a tool.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// FunctionResponse is the outcome of executing a function call, fed back
// into the next generate() call as history.
type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// Part is one element of a conversation, used both for the curated history
// passed into Generate and for the chunks it streams back out. Exactly one
// variant is populated, selected by Type. Role identifies which side of the
// conversation produced it ("user", "model", or "function") and is only
// meaningful on history Parts fed in as Messages.
type Part struct {
	Type PartType
	Role string

	Text             string
	FunctionCall     *FunctionCall
	FunctionResponse *FunctionResponse
	Attachments      []types.FileAttachment

	FinishReason string
	TokenCount   int64
	Err          error
}

// UserText builds a user-role text Part, the common shape for prior user turns.
func UserText(text string, attachments ...types.FileAttachment) Part {
	return Part{Type: PartText, Role: "user", Text: text, Attachments: attachments}
}

// ModelText builds a model-role text Part, the shape persisted assistant
// turns take when fed back in as history.
func ModelText(text string) Part {
	return Part{Type: PartText, Role: "model", Text: text}
}
