package tool

import (
	"sync"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/internal/logging"
)

// MCPSource describes where a federated tool came from, kept so calls
// through its conflict-resolved exposed name route back to the right
// server and original tool name.
type MCPSource struct {
	Server       string
	OriginalName string
}

// Registry holds the mapping tool_name -> definition for every
// built-in tool plus every tool currently harvested from enabled MCP
// connections. Name collisions between an MCP tool and a built-in (or
// another MCP server's tool of the same name) are resolved by
// exposing the MCP tool as "{server}__{tool}".
type Registry struct {
	mu      sync.RWMutex
	builtin map[string]*Definition
	mcp     map[string]*Definition
	mcpFrom map[string]MCPSource // exposed name -> (server, original name)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builtin: make(map[string]*Definition),
		mcp:     make(map[string]*Definition),
		mcpFrom: make(map[string]MCPSource),
	}
}

// RegisterBuiltin adds a built-in tool definition.
func (r *Registry) RegisterBuiltin(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtin[def.Name] = def
}

// SetMCPTools replaces the full set of currently harvested MCP tools.
// Called at call-list time (each turn), since MCP connections can be
// enabled/disabled and their tool lists can change between turns.
func (r *Registry) SetMCPTools(server string, defs []*Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Drop this server's previous contributions before re-adding.
	for exposed, src := range r.mcpFrom {
		if src.Server == server {
			delete(r.mcp, exposed)
			delete(r.mcpFrom, exposed)
		}
	}

	for _, def := range defs {
		original := def.Name
		exposed := original
		if _, collides := r.builtin[exposed]; collides {
			exposed = server + "__" + original
		} else if _, collides := r.mcp[exposed]; collides {
			exposed = server + "__" + original
		}
		copied := *def
		copied.Name = exposed
		r.mcp[exposed] = &copied
		r.mcpFrom[exposed] = MCPSource{Server: server, OriginalName: original}
		if exposed != original {
			logging.Debug().Str("server", server).Str("tool", original).Str("exposed_as", exposed).
				Msg("resolved mcp tool name conflict")
		}
	}
}

// Get looks up a tool definition by its exposed name, checking
// built-ins first.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.builtin[name]; ok {
		return def, true
	}
	def, ok := r.mcp[name]
	return def, ok
}

// MCPSourceOf returns the originating server and original tool name
// for an exposed MCP tool name, used to route a call back to its
// transport.
func (r *Registry) MCPSourceOf(exposed string) (MCPSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.mcpFrom[exposed]
	return src, ok
}

// List returns every currently exposed tool definition: built-ins
// first, then MCP-federated tools under their conflict-resolved name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.builtin)+len(r.mcp))
	for _, def := range r.builtin {
		out = append(out, def)
	}
	for _, def := range r.mcp {
		out = append(out, def)
	}
	return out
}

// Call dispatches a tool invocation by exposed name.
func (r *Registry) Call(tc *Context, name string, args []byte) (*Result, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, apierror.NotFound("tool %q not found", name)
	}
	return def.Handler(tc, args)
}

// RequiresConfirmation reports whether name is gated behind human
// approval.
func (r *Registry) RequiresConfirmation(name string) bool {
	def, ok := r.Get(name)
	return ok && def.RequiresConfirmation
}
