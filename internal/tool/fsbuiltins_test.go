package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/sandboxfs"
)

func newTestSandboxes(t *testing.T) SandboxProvider {
	t.Helper()
	dir := t.TempDir()
	fs, err := sandboxfs.New(dir)
	require.NoError(t, err)
	return func(sessionID string) (*sandboxfs.FS, error) {
		return fs, nil
	}
}

func newTestToolContext() *Context {
	return &Context{Ctx: context.Background(), SessionID: "s1", BranchID: "b1"}
}

func TestWriteThenReadFile(t *testing.T) {
	sandboxes := newTestSandboxes(t)
	write := NewWriteFileTool(sandboxes)
	read := NewReadFileTool(sandboxes)

	_, err := write.Handler(newTestToolContext(), json.RawMessage(`{"path":"notes.txt","content":"hello"}`))
	require.NoError(t, err)

	res, err := read.Handler(newTestToolContext(), json.RawMessage(`{"path":"notes.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Value)
}

func TestWriteFileRequiresConfirmation(t *testing.T) {
	write := NewWriteFileTool(newTestSandboxes(t))
	assert.True(t, write.RequiresConfirmation)
}

func TestReadFileRejectsUnknownArgument(t *testing.T) {
	read := NewReadFileTool(newTestSandboxes(t))
	_, err := read.Handler(newTestToolContext(), json.RawMessage(`{"path":"a.txt","bogus":1}`))
	assert.Error(t, err)
}

func TestListDirectoryTool(t *testing.T) {
	sandboxes := newTestSandboxes(t)
	write := NewWriteFileTool(sandboxes)
	for _, p := range []string{"d/a.txt", "d/b.txt"} {
		_, err := write.Handler(newTestToolContext(), json.RawMessage(`{"path":"`+p+`","content":"x"}`))
		require.NoError(t, err)
	}

	list := NewListDirectoryTool(sandboxes)
	res, err := list.Handler(newTestToolContext(), json.RawMessage(`{"path":"d"}`))
	require.NoError(t, err)
	assert.NotNil(t, res.Value)
}

func TestGlobTool(t *testing.T) {
	sandboxes := newTestSandboxes(t)
	write := NewWriteFileTool(sandboxes)
	for _, p := range []string{"src/a.go", "src/nested/b.go", "README.md"} {
		_, err := write.Handler(newTestToolContext(), json.RawMessage(`{"path":"`+p+`","content":"x"}`))
		require.NoError(t, err)
	}

	glob := NewGlobTool(sandboxes)
	res, err := glob.Handler(newTestToolContext(), json.RawMessage(`{"pattern":"**/*.go"}`))
	require.NoError(t, err)
	matches, ok := res.Value.([]string)
	require.True(t, ok)
	assert.Len(t, matches, 2)
}
