package sessiondb

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/pkg/types"
)

// GetBranch fetches a branch by id.
func (db *DB) GetBranch(ctx context.Context, branchID string) (*types.Branch, error) {
	row := db.read.QueryRowContext(ctx, `
		SELECT id, session_id, parent_branch_id, branch_from_message_id, pending_confirmation, created_at
		FROM branches WHERE id = ?`, branchID)

	var b types.Branch
	if err := row.Scan(&b.ID, &b.SessionID, &b.ParentBranchID, &b.BranchFromMessageID, &b.PendingConfirmation, &b.CreatedAt); err != nil {
		if isNoRows(err) {
			return nil, apierror.NotFound("branch %q not found", branchID)
		}
		return nil, apierror.Wrap(apierror.KindInternal, "query branch", err)
	}
	return &b, nil
}

// ListBranches returns every branch belonging to a session.
func (db *DB) ListBranches(ctx context.Context, sessionID string) ([]*types.Branch, error) {
	rows, err := db.read.QueryContext(ctx, `
		SELECT id, session_id, parent_branch_id, branch_from_message_id, pending_confirmation, created_at
		FROM branches WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "list branches", err)
	}
	defer rows.Close()

	var out []*types.Branch
	for rows.Next() {
		var b types.Branch
		if err := rows.Scan(&b.ID, &b.SessionID, &b.ParentBranchID, &b.BranchFromMessageID, &b.PendingConfirmation, &b.CreatedAt); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "scan branch", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// ForkBranch creates a sibling branch diverging at fromMessageID: a new
// branch row whose parent pointer is fromMessageID's branch. The new
// branch itself starts with no messages of its own; callers append
// messages with ParentMessageID set to fromMessageID to grow it.
func (db *DB) ForkBranch(ctx context.Context, fromMessageID int64, now int64) (string, error) {
	newBranchID := uuid.NewString()

	err := db.withWriteTx(ctx, func(tx *sql.Tx) error {
		var sourceBranchID string
		err := tx.QueryRowContext(ctx, `SELECT branch_id FROM messages WHERE id = ?`, fromMessageID).Scan(&sourceBranchID)
		if err != nil {
			if isNoRows(err) {
				return apierror.NotFound("message %d not found", fromMessageID)
			}
			return apierror.Wrap(apierror.KindInternal, "query source message", err)
		}

		var sessionID string
		if err := tx.QueryRowContext(ctx, `SELECT session_id FROM branches WHERE id = ?`, sourceBranchID).Scan(&sessionID); err != nil {
			return apierror.Wrap(apierror.KindInternal, "query source branch session", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO branches (id, session_id, parent_branch_id, branch_from_message_id, pending_confirmation, created_at)
			VALUES (?, ?, ?, ?, NULL, ?)`,
			newBranchID, sessionID, sourceBranchID, fromMessageID, now)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "insert forked branch", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return newBranchID, nil
}

// SetPendingConfirmation sets or clears (payload nil or "") a branch's
// parked tool call awaiting human approval.
func (db *DB) SetPendingConfirmation(ctx context.Context, branchID string, payload *string) error {
	if payload != nil && *payload == "" {
		payload = nil
	}
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE branches SET pending_confirmation = ? WHERE id = ?`, payload, branchID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "set pending confirmation", err)
		}
		return checkAffected(res, branchID)
	})
}
