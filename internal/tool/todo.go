package tool

import (
	"encoding/json"
	"time"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/pkg/types"
)

const writeTodoDescription = `Replaces the session's structured task list. Use this to track progress on multi-step work: one todo should be "in_progress" at a time, and completed todos should be marked immediately rather than batched.`

type writeTodoArgs struct {
	Todos []types.Todo `json:"todos"`
}

// NewWriteTodoTool builds the write_todo built-in.
func NewWriteTodoTool() *Definition {
	return &Definition{
		Name:        "write_todo",
		Description: writeTodoDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"todos": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"id": {"type": "string"},
							"content": {"type": "string"},
							"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]}
						},
						"required": ["id", "content", "status"]
					}
				}
			},
			"required": ["todos"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "todos"); err != nil {
				return nil, err
			}
			var args writeTodoArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid write_todo arguments: %v", err)
			}
			if err := tc.DB.SetTodos(tc.Ctx, tc.SessionID, args.Todos, time.Now().Unix()); err != nil {
				return nil, err
			}
			return &Result{Value: map[string]any{"todos": args.Todos}}, nil
		},
	}
}

const readTodoDescription = `Reads the session's current structured task list.`

// NewReadTodoTool builds the read_todo built-in.
func NewReadTodoTool() *Definition {
	return &Definition{
		Name:        "read_todo",
		Description: readTodoDescription,
		Schema:      json.RawMessage(`{"type": "object", "properties": {}}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m); err != nil {
				return nil, err
			}
			todos, err := tc.DB.GetTodos(tc.Ctx, tc.SessionID)
			if err != nil {
				return nil, err
			}
			return &Result{Value: map[string]any{"todos": todos}}, nil
		},
	}
}
