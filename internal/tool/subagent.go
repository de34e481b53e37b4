package tool

import (
	"encoding/json"

	"github.com/agentserver/agentserver/internal/apierror"
)

const subagentDescription = `Launches a subagent to handle a self-contained task autonomously in its own subsession, sharing this session's sandbox. Use for research, multi-step exploration, or any task whose intermediate back-and-forth would otherwise clutter the parent conversation.`

// SubagentExecutor runs a subagent's turn to completion in a fresh
// subsession sharing the parent session's sandbox, returning its final
// text output. Only the Turn engine (C6) can drive a full generation
// cycle, but no type in this repository implements this interface, so
// the subagent tool is not registered by the server.
type SubagentExecutor interface {
	RunSubagent(tc *Context, description, prompt, model string) (output string, subsessionID string, err error)
}

type subagentArgs struct {
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
	Model       string `json:"model,omitempty"`
}

// NewSubagentTool builds the subagent built-in.
func NewSubagentTool(executor SubagentExecutor) *Definition {
	return &Definition{
		Name:        "subagent",
		Description: subagentDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"description": {"type": "string", "description": "Short description of the task, shown while it runs"},
				"prompt": {"type": "string", "description": "The task for the subagent to carry out"},
				"model": {"type": "string", "description": "Optional model override for the subagent"}
			},
			"required": ["description", "prompt"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "description", "prompt", "model"); err != nil {
				return nil, err
			}
			var args subagentArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid subagent arguments: %v", err)
			}
			if args.Description == "" || args.Prompt == "" {
				return nil, apierror.BadRequest("subagent requires description and prompt")
			}

			output, subsessionID, err := executor.RunSubagent(tc, args.Description, args.Prompt, args.Model)
			if err != nil {
				return nil, apierror.Wrap(apierror.KindToolError, "run subagent", err)
			}
			return &Result{Value: map[string]any{"output": output, "subsessionId": subsessionID}}, nil
		},
	}
}
