package sessiondb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/pkg/types"
)

// GetTodos returns a session's current structured task list, or an
// empty list if none has been written yet.
func (db *DB) GetTodos(ctx context.Context, sessionID string) ([]types.Todo, error) {
	row := db.read.QueryRowContext(ctx, `SELECT todos_json FROM session_todos WHERE session_id = ?`, sessionID)
	var todosJSON string
	if err := row.Scan(&todosJSON); err != nil {
		if isNoRows(err) {
			return []types.Todo{}, nil
		}
		return nil, apierror.Wrap(apierror.KindInternal, "query todos", err)
	}
	var todos []types.Todo
	if err := json.Unmarshal([]byte(todosJSON), &todos); err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "unmarshal todos", err)
	}
	return todos, nil
}

// SetTodos replaces a session's structured task list wholesale.
func (db *DB) SetTodos(ctx context.Context, sessionID string, todos []types.Todo, now int64) error {
	todosJSON, err := json.Marshal(todos)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "marshal todos", err)
	}
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_todos (session_id, todos_json, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET todos_json = excluded.todos_json, updated_at = excluded.updated_at`,
			sessionID, string(todosJSON), now)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "upsert todos", err)
		}
		return nil
	})
}
