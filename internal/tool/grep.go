package tool

import (
	"bytes"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/agentserver/agentserver/internal/apierror"
)

const grepDescription = `Searches file contents inside the session's sandbox using a regular expression, optionally restricted to files matching an include glob.`

type grepArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Include string `json:"include,omitempty"`
}

// NewGrepTool builds the grep built-in, shelling out to ripgrep with
// its cwd confined to the sandbox base directory.
func NewGrepTool(sandboxes SandboxProvider) *Definition {
	return &Definition{
		Name:        "grep",
		Description: grepDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {"type": "string"},
				"path": {"type": "string", "description": "Directory to search, defaults to the sandbox root"},
				"include": {"type": "string", "description": "Glob of files to include, e.g. \"*.go\""}
			},
			"required": ["pattern"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "pattern", "path", "include"); err != nil {
				return nil, err
			}
			var args grepArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid grep arguments: %v", err)
			}
			if args.Path == "" {
				args.Path = "."
			}

			fs, err := sandboxes(tc.SessionID)
			if err != nil {
				return nil, err
			}
			resolved, err := fs.Resolve(args.Path)
			if err != nil {
				return nil, err
			}

			rgArgs := []string{"--line-number", "--no-heading", "--color=never"}
			if args.Include != "" {
				rgArgs = append(rgArgs, "--glob", args.Include)
			}
			rgArgs = append(rgArgs, args.Pattern, resolved)

			cmd := exec.CommandContext(tc.Ctx, "rg", rgArgs...)
			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			runErr := cmd.Run()
			if runErr != nil {
				if exitErr, ok := runErr.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
					// rg exits 1 for "no matches", which is not an error here.
					return &Result{Value: map[string]any{"matches": []string{}}}, nil
				}
				return nil, apierror.Wrap(apierror.KindToolError, "run grep", runErr)
			}

			lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
			if len(lines) == 1 && lines[0] == "" {
				lines = nil
			}
			return &Result{Value: map[string]any{"matches": lines}}, nil
		},
	}
}
