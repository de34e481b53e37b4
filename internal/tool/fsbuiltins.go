package tool

import (
	"encoding/json"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/internal/sandboxfs"
)

// SandboxProvider resolves the sandbox filesystem in effect for a
// given session, so file tool handlers stay storage-agnostic.
type SandboxProvider func(sessionID string) (*sandboxfs.FS, error)

const listDirectoryDescription = `Lists files and directories under a path inside the session's sandbox, as a bounded tree. Truncated when more than max_entries entries exist.`

type listDirectoryArgs struct {
	Path       string `json:"path"`
	MaxEntries int    `json:"max_entries"`
}

// NewListDirectoryTool builds the list_directory built-in.
func NewListDirectoryTool(sandboxes SandboxProvider) *Definition {
	return &Definition{
		Name:        "list_directory",
		Description: listDirectoryDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Sandbox-relative or sandbox-absolute directory path"},
				"max_entries": {"type": "integer", "description": "Maximum entries to visit before truncating"}
			},
			"required": ["path"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "path", "max_entries"); err != nil {
				return nil, err
			}
			var args listDirectoryArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid list_directory arguments: %v", err)
			}
			if args.MaxEntries <= 0 {
				args.MaxEntries = 500
			}
			fs, err := sandboxes(tc.SessionID)
			if err != nil {
				return nil, err
			}
			tree, err := fs.ListDirectory(args.Path, args.MaxEntries)
			if err != nil {
				return nil, err
			}
			return &Result{Value: tree}, nil
		},
	}
}

const readFileDescription = `Reads a file's bytes from inside the session's sandbox.`

type readFileArgs struct {
	Path string `json:"path"`
}

// NewReadFileTool builds the read_file built-in.
func NewReadFileTool(sandboxes SandboxProvider) *Definition {
	return &Definition{
		Name:        "read_file",
		Description: readFileDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "path"); err != nil {
				return nil, err
			}
			var args readFileArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid read_file arguments: %v", err)
			}
			fs, err := sandboxes(tc.SessionID)
			if err != nil {
				return nil, err
			}
			data, err := fs.ReadFile(args.Path)
			if err != nil {
				return nil, err
			}
			return &Result{Value: string(data)}, nil
		},
	}
}

const writeFileDescription = `Writes bytes to a file inside the session's sandbox, creating parent directories and atomically replacing any existing file.`

type writeFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// NewWriteFileTool builds the write_file built-in. Writes require
// confirmation since they mutate the sandbox.
func NewWriteFileTool(sandboxes SandboxProvider) *Definition {
	return &Definition{
		Name:                 "write_file",
		Description:          writeFileDescription,
		RequiresConfirmation: true,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"content": {"type": "string"}
			},
			"required": ["path", "content"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "path", "content"); err != nil {
				return nil, err
			}
			var args writeFileArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid write_file arguments: %v", err)
			}
			fs, err := sandboxes(tc.SessionID)
			if err != nil {
				return nil, err
			}
			if err := fs.WriteFile(args.Path, []byte(args.Content)); err != nil {
				return nil, err
			}
			return &Result{Value: map[string]any{"bytesWritten": len(args.Content)}}, nil
		},
	}
}

const globDescription = `Matches a glob pattern ("**" supported) against files under the session's sandbox, returning sandbox-absolute paths.`

type globArgs struct {
	Pattern string `json:"pattern"`
}

// NewGlobTool builds the glob built-in.
func NewGlobTool(sandboxes SandboxProvider) *Definition {
	return &Definition{
		Name:        "glob",
		Description: globDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"pattern": {"type": "string"}},
			"required": ["pattern"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "pattern"); err != nil {
				return nil, err
			}
			var args globArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid glob arguments: %v", err)
			}
			fs, err := sandboxes(tc.SessionID)
			if err != nil {
				return nil, err
			}
			matches, err := fs.Glob(args.Pattern)
			if err != nil {
				return nil, err
			}
			return &Result{Value: matches}, nil
		},
	}
}
