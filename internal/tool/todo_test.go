package tool

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/sessiondb"
	"github.com/agentserver/agentserver/pkg/types"
)

func newTestSessionDB(t *testing.T) (*sessiondb.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := sessiondb.Open(filepath.Join(dir, "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessionID, _, err := db.CreateSession(context.Background(), "", "", 1000)
	require.NoError(t, err)
	return db, sessionID
}

func TestWriteTodoThenReadTodo(t *testing.T) {
	db, sessionID := newTestSessionDB(t)
	write := NewWriteTodoTool()
	read := NewReadTodoTool()

	tc := &Context{Ctx: context.Background(), DB: db, SessionID: sessionID}

	_, err := write.Handler(tc, json.RawMessage(`{
		"todos": [
			{"id": "1", "content": "write tests", "status": "in_progress"}
		]
	}`))
	require.NoError(t, err)

	res, err := read.Handler(tc, json.RawMessage(`{}`))
	require.NoError(t, err)

	value := res.Value.(map[string]any)
	todos := value["todos"].([]types.Todo)
	require.Len(t, todos, 1)
	assert.Equal(t, types.TodoInProgress, todos[0].Status)
}

func TestReadTodoEmptyBeforeAnyWrite(t *testing.T) {
	db, sessionID := newTestSessionDB(t)
	read := NewReadTodoTool()
	tc := &Context{Ctx: context.Background(), DB: db, SessionID: sessionID}

	res, err := read.Handler(tc, json.RawMessage(`{}`))
	require.NoError(t, err)

	value := res.Value.(map[string]any)
	todos := value["todos"].([]types.Todo)
	assert.Empty(t, todos)
}

func TestWriteTodoRejectsUnknownArgument(t *testing.T) {
	write := NewWriteTodoTool()
	_, err := write.Handler(newTestToolContext(), json.RawMessage(`{"todos":[],"bogus":1}`))
	assert.Error(t, err)
}
