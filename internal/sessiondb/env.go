package sessiondb

import (
	"context"
	"database/sql"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/pkg/types"
)

// GetSessionEnv returns the roots currently granted to a session.
func (db *DB) GetSessionEnv(ctx context.Context, sessionID string) ([]types.EnvRoot, error) {
	rows, err := db.read.QueryContext(ctx, `SELECT path FROM session_env_roots WHERE session_id = ? ORDER BY granted_at ASC`, sessionID)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "query session env", err)
	}
	defer rows.Close()

	var out []types.EnvRoot
	for rows.Next() {
		var r types.EnvRoot
		if err := rows.Scan(&r.Path); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "scan env root", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddSessionEnv grants additional roots to a session, ignoring roots
// already granted.
func (db *DB) AddSessionEnv(ctx context.Context, sessionID string, roots []types.EnvRoot, now int64) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range roots {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO session_env_roots (session_id, path, granted_at)
				VALUES (?, ?, ?)
				ON CONFLICT(session_id, path) DO NOTHING`,
				sessionID, r.Path, now)
			if err != nil {
				return apierror.Wrap(apierror.KindInternal, "insert env root", err)
			}
		}
		return nil
	})
}

// RemoveSessionEnv revokes roots from a session.
func (db *DB) RemoveSessionEnv(ctx context.Context, sessionID string, paths []string) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, p := range paths {
			_, err := tx.ExecContext(ctx, `DELETE FROM session_env_roots WHERE session_id = ? AND path = ?`, sessionID, p)
			if err != nil {
				return apierror.Wrap(apierror.KindInternal, "delete env root", err)
			}
		}
		return nil
	})
}
