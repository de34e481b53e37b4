package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubagentExecutor struct {
	output       string
	subsessionID string
	err          error
	lastPrompt   string
}

func (f *fakeSubagentExecutor) RunSubagent(tc *Context, description, prompt, model string) (string, string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", "", f.err
	}
	return f.output, f.subsessionID, nil
}

func TestSubagentRunsAndReturnsOutput(t *testing.T) {
	exec := &fakeSubagentExecutor{output: "done researching", subsessionID: "sub-1"}
	tool := NewSubagentTool(exec)

	res, err := tool.Handler(newTestToolContext(), json.RawMessage(`{
		"description": "research the thing",
		"prompt": "find out how X works"
	}`))
	require.NoError(t, err)

	value := res.Value.(map[string]any)
	assert.Equal(t, "done researching", value["output"])
	assert.Equal(t, "sub-1", value["subsessionId"])
	assert.Equal(t, "find out how X works", exec.lastPrompt)
}

func TestSubagentRequiresDescriptionAndPrompt(t *testing.T) {
	tool := NewSubagentTool(&fakeSubagentExecutor{})

	_, err := tool.Handler(newTestToolContext(), json.RawMessage(`{"description": "", "prompt": ""}`))
	assert.Error(t, err)
}

func TestSubagentPropagatesExecutorError(t *testing.T) {
	exec := &fakeSubagentExecutor{err: assert.AnError}
	tool := NewSubagentTool(exec)

	_, err := tool.Handler(newTestToolContext(), json.RawMessage(`{"description": "d", "prompt": "p"}`))
	assert.Error(t, err)
}

func TestSubagentRejectsUnknownArgument(t *testing.T) {
	tool := NewSubagentTool(&fakeSubagentExecutor{})
	_, err := tool.Handler(newTestToolContext(), json.RawMessage(`{"description":"d","prompt":"p","bogus":1}`))
	assert.Error(t, err)
}
