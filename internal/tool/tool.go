// Package tool implements the dispatch layer the Turn engine calls
// into: a registry mapping tool name to schema, handler, and
// confirmation policy, covering both built-in tools and tools
// federated in from MCP servers.
package tool

import (
	"context"
	"encoding/json"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/internal/sessiondb"
	"github.com/agentserver/agentserver/pkg/types"
)

// Context carries the state a handler needs to act on behalf of one
// call: which session/branch it's scoped to, the model that's
// currently driving the turn, and whether a previously required
// confirmation has now been granted.
type Context struct {
	Ctx                  context.Context
	DB                   *sessiondb.DB
	SessionID            string
	BranchID             string
	ModelName            string
	ConfirmationReceived bool
}

// Result is what a handler returns on success: a JSON-serializable
// value plus any blob-store-backed attachments it produced.
type Result struct {
	Value       any                    `json:"value"`
	Attachments []types.FileAttachment `json:"attachments,omitempty"`
}

// Handler executes one tool call. args is the raw JSON object the
// model supplied; implementations should use EnsureKnownKeys before
// unmarshaling into a typed struct.
type Handler func(tc *Context, args json.RawMessage) (*Result, error)

// Definition is one entry in the registry: its JSON schema, its
// handler, and whether calling it requires human confirmation before
// it runs.
type Definition struct {
	Name                 string
	Description          string
	Schema               json.RawMessage
	Handler              Handler
	RequiresConfirmation bool
}

// EnsureKnownKeys rejects args containing any key not in allowed,
// returning a bad-request error naming the first offending key found.
// Every built-in handler calls this before acting so a model that
// hallucinates an extra argument fails fast instead of being silently
// ignored.
func EnsureKnownKeys(args map[string]any, allowed ...string) error {
	set := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		set[k] = struct{}{}
	}
	for k := range args {
		if _, ok := set[k]; !ok {
			return apierror.BadRequest("unknown argument %q", k)
		}
	}
	return nil
}

// DecodeArgs unmarshals raw into a map for key validation.
func DecodeArgs(raw json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, apierror.Wrap(apierror.KindBadRequest, "decode tool arguments", err)
	}
	return m, nil
}
