package sessiondb

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/pkg/types"
)

// CreateSession creates a new session with a fresh primary branch,
// returning their ids.
func (db *DB) CreateSession(ctx context.Context, systemPrompt, workspaceID string, now int64) (sessionID, branchID string, err error) {
	sessionID = uuid.NewString()
	branchID = uuid.NewString()

	err = db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, name, system_prompt, workspace_id, primary_branch_id, last_updated_at, archived)
			VALUES (?, '', ?, ?, ?, ?, 0)`,
			sessionID, systemPrompt, workspaceID, branchID, now)
		if execErr != nil {
			return apierror.Wrap(apierror.KindInternal, "insert session", execErr)
		}
		_, execErr = tx.ExecContext(ctx, `
			INSERT INTO branches (id, session_id, parent_branch_id, branch_from_message_id, pending_confirmation, created_at)
			VALUES (?, ?, NULL, NULL, NULL, ?)`,
			branchID, sessionID, now)
		if execErr != nil {
			return apierror.Wrap(apierror.KindInternal, "insert primary branch", execErr)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return sessionID, branchID, nil
}

// GetSession fetches a session by id.
func (db *DB) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := db.read.QueryRowContext(ctx, `
		SELECT id, name, system_prompt, workspace_id, primary_branch_id, last_updated_at, archived
		FROM sessions WHERE id = ?`, sessionID)

	var s types.Session
	var archived int
	if err := row.Scan(&s.ID, &s.Name, &s.SystemPrompt, &s.WorkspaceID, &s.PrimaryBranchID, &s.LastUpdatedAt, &archived); err != nil {
		if isNoRows(err) {
			return nil, apierror.NotFound("session %q not found", sessionID)
		}
		return nil, apierror.Wrap(apierror.KindInternal, "query session", err)
	}
	s.Archived = archived != 0
	return &s, nil
}

// ListSessions returns non-temporary sessions ordered by most recently
// updated, limited to workspaceID when it is non-empty and excluding
// archived sessions unless includeArchived is set.
func (db *DB) ListSessions(ctx context.Context, workspaceID string, includeArchived bool) ([]*types.Session, error) {
	query := `SELECT id, name, system_prompt, workspace_id, primary_branch_id, last_updated_at, archived
		FROM sessions WHERE id NOT LIKE '.%'`
	var args []any
	if workspaceID != "" {
		query += ` AND workspace_id = ?`
		args = append(args, workspaceID)
	}
	if !includeArchived {
		query += ` AND archived = 0`
	}
	query += ` ORDER BY last_updated_at DESC`

	rows, err := db.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "list sessions", err)
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		var s types.Session
		var archived int
		if err := rows.Scan(&s.ID, &s.Name, &s.SystemPrompt, &s.WorkspaceID, &s.PrimaryBranchID, &s.LastUpdatedAt, &archived); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "scan session", err)
		}
		s.Archived = archived != 0
		out = append(out, &s)
	}
	return out, rows.Err()
}

// RenameSession updates a session's display name.
func (db *DB) RenameSession(ctx context.Context, sessionID, name string) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET name = ? WHERE id = ?`, name, sessionID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "rename session", err)
		}
		return checkAffected(res, sessionID)
	})
}

// SetPrimaryBranch switches which branch is shown by default.
func (db *DB) SetPrimaryBranch(ctx context.Context, sessionID, branchID string) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET primary_branch_id = ? WHERE id = ?`, branchID, sessionID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "set primary branch", err)
		}
		return checkAffected(res, sessionID)
	})
}

// SetWorkspace moves a session into a different workspace.
func (db *DB) SetWorkspace(ctx context.Context, sessionID, workspaceID string) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET workspace_id = ? WHERE id = ?`, workspaceID, sessionID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "set workspace", err)
		}
		return checkAffected(res, sessionID)
	})
}

// SetArchived sets or clears a session's archived flag.
func (db *DB) SetArchived(ctx context.Context, sessionID string, archived bool) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET archived = ? WHERE id = ?`, boolToInt(archived), sessionID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "set archived", err)
		}
		return checkAffected(res, sessionID)
	})
}

// Touch bumps last_updated_at, used whenever a session's branch gains
// a new message.
func (db *DB) Touch(ctx context.Context, sessionID string, now int64) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET last_updated_at = ? WHERE id = ?`, now, sessionID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "touch session", err)
		}
		return nil
	})
}

// DeleteSession removes a session and (via ON DELETE CASCADE) its
// branches, messages, and env grants.
func (db *DB) DeleteSession(ctx context.Context, sessionID string) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "delete session", err)
		}
		return checkAffected(res, sessionID)
	})
}

// ExtractSession creates a brand new session whose primary branch
// replays the message chain ending at fromMessageID (inclusive) as a
// fresh, independent history — a deep copy rather than a fork, since
// the new session must survive the original being deleted.
func (db *DB) ExtractSession(ctx context.Context, fromMessageID int64, now int64) (newSessionID, newBranchID string, err error) {
	var chain []*types.Message
	cursor := &fromMessageID
	for cursor != nil {
		m, err := db.GetMessage(ctx, *cursor)
		if err != nil {
			return "", "", err
		}
		chain = append(chain, m)
		cursor = m.ParentMessageID
	}

	source, err := db.GetMessage(ctx, fromMessageID)
	if err != nil {
		return "", "", err
	}
	branch, err := db.GetBranch(ctx, source.BranchID)
	if err != nil {
		return "", "", err
	}
	session, err := db.GetSession(ctx, branch.SessionID)
	if err != nil {
		return "", "", err
	}

	newSessionID, newBranchID, err = db.CreateSession(ctx, session.SystemPrompt, session.WorkspaceID, now)
	if err != nil {
		return "", "", err
	}

	var parent *int64
	for i := len(chain) - 1; i >= 0; i-- {
		m := chain[i]
		id, err := db.AppendMessage(ctx, newBranchID, parent, types.Message{
			BranchID:        newBranchID,
			Text:            m.Text,
			Type:            m.Type,
			Attachments:     m.Attachments,
			CumulTokenCount: m.CumulTokenCount,
			Model:           m.Model,
			CreatedAt:       m.CreatedAt,
			Generation:      m.Generation,
		})
		if err != nil {
			return "", "", err
		}
		parent = &id
	}
	return newSessionID, newBranchID, nil
}

func checkAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "rows affected", err)
	}
	if n == 0 {
		return apierror.NotFound("%q not found", id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
