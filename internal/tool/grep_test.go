package tool

import (
	"encoding/json"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireRipgrep(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("rg"); err != nil {
		t.Skip("ripgrep (rg) not installed")
	}
}

func TestGrepFindsMatches(t *testing.T) {
	requireRipgrep(t)

	sandboxes := newTestSandboxes(t)
	write := NewWriteFileTool(sandboxes)
	_, err := write.Handler(newTestToolContext(), json.RawMessage(`{"path":"search.txt","content":"Hello World\nFoo Bar\nHello Again\n"}`))
	require.NoError(t, err)

	grep := NewGrepTool(sandboxes)
	res, err := grep.Handler(newTestToolContext(), json.RawMessage(`{"pattern":"Hello"}`))
	require.NoError(t, err)

	value, ok := res.Value.(map[string]any)
	require.True(t, ok)
	matches, ok := value["matches"].([]string)
	require.True(t, ok)
	assert.Len(t, matches, 2)
}

func TestGrepNoMatches(t *testing.T) {
	requireRipgrep(t)

	sandboxes := newTestSandboxes(t)
	write := NewWriteFileTool(sandboxes)
	_, err := write.Handler(newTestToolContext(), json.RawMessage(`{"path":"search.txt","content":"Foo Bar\n"}`))
	require.NoError(t, err)

	grep := NewGrepTool(sandboxes)
	res, err := grep.Handler(newTestToolContext(), json.RawMessage(`{"pattern":"NonExistent"}`))
	require.NoError(t, err)

	value := res.Value.(map[string]any)
	matches := value["matches"].([]string)
	assert.Empty(t, matches)
}

func TestGrepWithIncludeGlob(t *testing.T) {
	requireRipgrep(t)

	sandboxes := newTestSandboxes(t)
	write := NewWriteFileTool(sandboxes)
	require.NoError(t, writeAll(write, map[string]string{
		"test.go":  "Hello from Go",
		"test.txt": "Hello from TXT",
	}))

	grep := NewGrepTool(sandboxes)
	res, err := grep.Handler(newTestToolContext(), json.RawMessage(`{"pattern":"Hello","include":"*.go"}`))
	require.NoError(t, err)

	value := res.Value.(map[string]any)
	matches := value["matches"].([]string)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0], "test.go")
}

func TestGrepRejectsUnknownArgument(t *testing.T) {
	grep := NewGrepTool(newTestSandboxes(t))
	_, err := grep.Handler(newTestToolContext(), json.RawMessage(`{"pattern":"x","bogus":true}`))
	assert.Error(t, err)
}

func writeAll(write *Definition, files map[string]string) error {
	for path, content := range files {
		raw, err := json.Marshal(map[string]string{"path": path, "content": content})
		if err != nil {
			return err
		}
		if _, err := write.Handler(newTestToolContext(), raw); err != nil {
			return err
		}
	}
	return nil
}
