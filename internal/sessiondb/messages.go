package sessiondb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/pkg/types"
)

// AppendMessage inserts a new message as the child of parentMessageID
// (nil for the first message in a branch) and, when a parent exists,
// atomically updates that parent's chosen_next_id to point at the new
// message — making it the canonical continuation of the branch spine.
func (db *DB) AppendMessage(ctx context.Context, branchID string, parentMessageID *int64, msg types.Message) (int64, error) {
	attachmentsJSON, err := json.Marshal(msg.Attachments)
	if err != nil {
		return 0, apierror.Wrap(apierror.KindInternal, "marshal attachments", err)
	}

	var newID int64
	err = db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO messages (branch_id, parent_message_id, chosen_next_id, text, type, attachments, cumul_token_count, model, created_at, generation, indexed)
			VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?)`,
			branchID, parentMessageID, msg.Text, string(msg.Type), string(attachmentsJSON),
			msg.CumulTokenCount, msg.Model, msg.CreatedAt, msg.Generation, boolToInt(msg.Indexed))
		if execErr != nil {
			return apierror.Wrap(apierror.KindInternal, "insert message", execErr)
		}
		id, execErr := res.LastInsertId()
		if execErr != nil {
			return apierror.Wrap(apierror.KindInternal, "last insert id", execErr)
		}
		newID = id

		if parentMessageID != nil {
			_, execErr = tx.ExecContext(ctx, `UPDATE messages SET chosen_next_id = ? WHERE id = ?`, newID, *parentMessageID)
			if execErr != nil {
				return apierror.Wrap(apierror.KindInternal, "update parent chosen_next_id", execErr)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newID, nil
}

// UpdateMessageText overwrites a message's text in place, used by the
// Turn engine to extend a streamed model-text message as fragments
// arrive rather than inserting a new row per fragment.
func (db *DB) UpdateMessageText(ctx context.Context, messageID int64, text string) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE messages SET text = ? WHERE id = ?`, text, messageID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "update message text", err)
		}
		return checkAffectedID(res, messageID)
	})
}

// UpdateCumulTokenCount sets the running token count the LLM adapter
// reported for a message's generation so far.
func (db *DB) UpdateCumulTokenCount(ctx context.Context, messageID int64, count int64) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE messages SET cumul_token_count = ? WHERE id = ?`, count, messageID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "update cumul token count", err)
		}
		return checkAffectedID(res, messageID)
	})
}

func checkAffectedID(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "rows affected", err)
	}
	if n == 0 {
		return apierror.NotFound("message %d not found", id)
	}
	return nil
}

// GetMessage fetches one message by id.
func (db *DB) GetMessage(ctx context.Context, messageID int64) (*types.Message, error) {
	row := db.read.QueryRowContext(ctx, `
		SELECT id, branch_id, parent_message_id, chosen_next_id, text, type, attachments, cumul_token_count, model, created_at, generation, indexed
		FROM messages WHERE id = ?`, messageID)
	return scanMessage(row)
}

func scanMessage(row *sql.Row) (*types.Message, error) {
	var m types.Message
	var typ string
	var attachmentsJSON string
	var indexed int
	if err := row.Scan(&m.ID, &m.BranchID, &m.ParentMessageID, &m.ChosenNextID, &m.Text, &typ, &attachmentsJSON,
		&m.CumulTokenCount, &m.Model, &m.CreatedAt, &m.Generation, &indexed); err != nil {
		if isNoRows(err) {
			return nil, apierror.NotFound("message not found")
		}
		return nil, apierror.Wrap(apierror.KindInternal, "query message", err)
	}
	m.Type = types.MessageType(typ)
	m.Indexed = indexed != 0
	if attachmentsJSON != "" {
		if err := json.Unmarshal([]byte(attachmentsJSON), &m.Attachments); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "unmarshal attachments", err)
		}
	}
	return &m, nil
}

// branchTailID returns the id of the message at the head of branchID's
// own spine, falling back to the branch's fork point when the branch
// owns no messages of its own yet (freshly created by ForkBranch,
// before the caller has appended its first message). Returns a nil
// *int64 with a nil error for a genuinely empty top-level branch.
func (db *DB) branchTailID(ctx context.Context, branchID string) (*int64, error) {
	row := db.read.QueryRowContext(ctx, `
		SELECT id FROM messages WHERE branch_id = ? AND chosen_next_id IS NULL ORDER BY id DESC LIMIT 1`, branchID)
	var tail int64
	if err := row.Scan(&tail); err != nil {
		if !isNoRows(err) {
			return nil, apierror.Wrap(apierror.KindInternal, "query tail", err)
		}
		forkRow := db.read.QueryRowContext(ctx, `SELECT branch_from_message_id FROM branches WHERE id = ?`, branchID)
		var fromID sql.NullInt64
		if ferr := forkRow.Scan(&fromID); ferr != nil {
			if isNoRows(ferr) {
				return nil, apierror.NotFound("branch %q not found", branchID)
			}
			return nil, apierror.Wrap(apierror.KindInternal, "query branch fork point", ferr)
		}
		if !fromID.Valid {
			return nil, nil
		}
		return &fromID.Int64, nil
	}
	return &tail, nil
}

// GetHistory walks the branch spine backward from beforeMessageID (or
// from the tail when nil), returning up to limit+1 messages newest
// first so the caller can detect hasMore by checking len(result) >
// limit.
func (db *DB) GetHistory(ctx context.Context, branchID string, beforeMessageID *int64, limit int) ([]*types.Message, error) {
	// Walk the parent pointers starting from the branch's tail (or the
	// given marker), since chosen_next_id only tells us the forward
	// direction; the reverse walk follows parent_message_id.
	var startID *int64
	if beforeMessageID != nil {
		row := db.read.QueryRowContext(ctx, `SELECT parent_message_id FROM messages WHERE id = ? AND branch_id = ?`, *beforeMessageID, branchID)
		var parent sql.NullInt64
		if err := row.Scan(&parent); err != nil {
			if isNoRows(err) {
				return nil, apierror.NotFound("message %d not found in branch", *beforeMessageID)
			}
			return nil, apierror.Wrap(apierror.KindInternal, "query marker", err)
		}
		if parent.Valid {
			v := parent.Int64
			startID = &v
		}
	} else {
		tail, err := db.branchTailID(ctx, branchID)
		if err != nil {
			return nil, err
		}
		startID = tail
	}

	var out []*types.Message
	cursor := startID
	for len(out) < limit+1 && cursor != nil {
		row := db.read.QueryRowContext(ctx, `
			SELECT id, branch_id, parent_message_id, chosen_next_id, text, type, attachments, cumul_token_count, model, created_at, generation, indexed
			FROM messages WHERE id = ?`, *cursor)
		m, err := scanMessage(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
		cursor = m.ParentMessageID
	}
	return out, nil
}
