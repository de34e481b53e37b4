package mcp

import (
	"context"
	"encoding/json"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/internal/tool"
)

// HarvestTools converts one connected server's tool list into
// tool.Definitions whose Handler calls back into the client, and hands
// them to registry.SetMCPTools. Call it once per server at startup and
// again whenever a server's connection state changes — SetMCPTools is
// built to be re-run cheaply each turn, since the registry only keeps
// whatever the most recent harvest produced.
func HarvestTools(ctx context.Context, client *Client, server string, registry *tool.Registry) error {
	tools, err := client.ServerTools(server)
	if err != nil {
		return err
	}

	defs := make([]*tool.Definition, len(tools))
	for i, t := range tools {
		defs[i] = harvestedDefinition(client, server, t)
	}
	registry.SetMCPTools(server, defs)
	return nil
}

func harvestedDefinition(client *Client, server string, t Tool) *tool.Definition {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	originalName := t.Name
	return &tool.Definition{
		Name:        originalName,
		Description: t.Description,
		Schema:      schema,
		Handler: func(tc *tool.Context, args json.RawMessage) (*tool.Result, error) {
			output, err := client.CallTool(tc.Ctx, server, originalName, args)
			if err != nil {
				return nil, apierror.Wrap(apierror.KindToolError, "mcp tool "+server+"/"+originalName, err)
			}
			return &tool.Result{Value: output}, nil
		},
	}
}
