package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/apierror"
)

func TestBatchRunsIndependentCallsConcurrently(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin(echoDefinition("ping", false))
	batch := NewBatchTool(r)

	res, err := batch.Handler(newTestToolContext(), json.RawMessage(`{
		"calls": [
			{"tool": "ping", "parameters": {"n": 1}},
			{"tool": "ping", "parameters": {"n": 2}}
		]
	}`))
	require.NoError(t, err)

	results, ok := res.Value.([]batchCallResult)
	require.True(t, ok)
	require.Len(t, results, 2)
	assert.Equal(t, "ping", results[0].Tool)
	assert.Equal(t, "ping", results[1].Tool)
}

func TestBatchCapturesPerCallErrorsWithoutAborting(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin(echoDefinition("ok", false))
	r.RegisterBuiltin(&Definition{
		Name:   "boom",
		Schema: json.RawMessage(`{"type":"object"}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			return nil, apierror.New(apierror.KindToolError, "boom failed")
		},
	})
	batch := NewBatchTool(r)

	res, err := batch.Handler(newTestToolContext(), json.RawMessage(`{
		"calls": [
			{"tool": "boom", "parameters": {}},
			{"tool": "ok", "parameters": {}}
		]
	}`))
	require.NoError(t, err)

	results := res.Value.([]batchCallResult)
	require.Len(t, results, 2)
	assert.NotEmpty(t, results[0].Error)
	assert.Empty(t, results[1].Error)
}

func TestBatchRejectsNesting(t *testing.T) {
	r := NewRegistry()
	batch := NewBatchTool(r)

	_, err := batch.Handler(newTestToolContext(), json.RawMessage(`{
		"calls": [{"tool": "batch", "parameters": {}}]
	}`))
	assert.Error(t, err)
}

func TestBatchRejectsConfirmationGatedCalls(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin(echoDefinition("write_file", true))
	batch := NewBatchTool(r)

	_, err := batch.Handler(newTestToolContext(), json.RawMessage(`{
		"calls": [{"tool": "write_file", "parameters": {}}]
	}`))
	assert.Error(t, err)
}

func TestBatchRejectsEmptyCalls(t *testing.T) {
	r := NewRegistry()
	batch := NewBatchTool(r)

	_, err := batch.Handler(newTestToolContext(), json.RawMessage(`{"calls": []}`))
	assert.Error(t, err)
}

func TestBatchRejectsTooManyCalls(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltin(echoDefinition("ping", false))
	batch := NewBatchTool(r)

	calls := make([]map[string]any, maxBatchSize+1)
	for i := range calls {
		calls[i] = map[string]any{"tool": "ping", "parameters": map[string]any{}}
	}
	raw, err := json.Marshal(map[string]any{"calls": calls})
	require.NoError(t, err)

	_, err = batch.Handler(newTestToolContext(), raw)
	assert.Error(t, err)
}
