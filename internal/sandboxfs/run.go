package sandboxfs

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/agentserver/agentserver/internal/apierror"
)

// RunResult carries the captured output of a one-shot command run with
// its cwd set to the sandbox root.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes command with args, cwd set to the sandbox base
// directory, and returns its captured output and exit code. Unlike the
// shell tool (which runs interactively through a pseudo-terminal), Run
// is a one-shot, non-interactive invocation used by tools that just
// need a command's result (e.g. a formatter or linter).
func (f *FS) Run(ctx context.Context, command string, args ...string) (*RunResult, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = f.base

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, apierror.Wrap(apierror.KindToolError, "run command", err)
		}
	}

	return &RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}
