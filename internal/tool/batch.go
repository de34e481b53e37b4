package tool

import (
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/agentserver/agentserver/internal/apierror"
)

const maxBatchSize = 10

// batchDisallowed names tools that cannot appear inside a batch: batch
// itself (no nesting), and any tool that requires confirmation (a
// batch call has no way to park a single parked member without
// blocking the rest).
var batchDisallowed = map[string]bool{
	"batch": true,
}

const batchDescription = `Executes multiple independent, read-only tool calls concurrently to reduce latency. Best used for gathering context (reads, searches, listings); calls that mutate state or depend on each other's output should run separately.`

type batchCall struct {
	Tool       string          `json:"tool"`
	Parameters json.RawMessage `json:"parameters"`
}

type batchArgs struct {
	Calls []batchCall `json:"calls"`
}

type batchCallResult struct {
	Tool   string `json:"tool"`
	Value  any    `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewBatchTool builds the batch built-in against a registry, so it can
// dispatch each nested call the same way the Turn engine would.
func NewBatchTool(registry *Registry) *Definition {
	return &Definition{
		Name:        "batch",
		Description: batchDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"calls": {
					"type": "array",
					"maxItems": 10,
					"items": {
						"type": "object",
						"properties": {
							"tool": {"type": "string"},
							"parameters": {"type": "object"}
						},
						"required": ["tool", "parameters"]
					}
				}
			},
			"required": ["calls"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "calls"); err != nil {
				return nil, err
			}
			var args batchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid batch arguments: %v", err)
			}
			if len(args.Calls) == 0 {
				return nil, apierror.BadRequest("batch requires at least one call")
			}
			if len(args.Calls) > maxBatchSize {
				return nil, apierror.BadRequest("batch accepts at most %d calls", maxBatchSize)
			}
			for _, c := range args.Calls {
				if batchDisallowed[c.Tool] {
					return nil, apierror.BadRequest("tool %q cannot run inside a batch", c.Tool)
				}
				if registry.RequiresConfirmation(c.Tool) {
					return nil, apierror.BadRequest("tool %q requires confirmation and cannot run inside a batch", c.Tool)
				}
			}

			results := make([]batchCallResult, len(args.Calls))
			var g errgroup.Group
			for i, c := range args.Calls {
				i, c := i, c
				g.Go(func() error {
					res, err := registry.Call(tc, c.Tool, c.Parameters)
					if err != nil {
						results[i] = batchCallResult{Tool: c.Tool, Error: err.Error()}
						return nil
					}
					results[i] = batchCallResult{Tool: c.Tool, Value: res.Value}
					return nil
				})
			}
			_ = g.Wait() // individual call errors are captured per-result, never aborts the batch

			return &Result{Value: results}, nil
		},
	}
}
