package sessiondb

import (
	"context"
	"strings"

	"github.com/agentserver/agentserver/internal/apierror"
)

// SearchResult is one full-text match, carrying enough session context
// for the caller to render and link to it without a second query.
type SearchResult struct {
	MessageID   int64
	SessionID   string
	SessionName string
	WorkspaceID string
	Excerpt     string
	Type        string
	CreatedAt   int64
}

// Search runs a full-text query over message text, returning results
// newest-first. When maxID is non-zero, only messages strictly older
// than maxID are considered, allowing cursor-based pagination. The
// returned hasMore is true iff at least limit+1 candidates matched.
func (db *DB) Search(ctx context.Context, query string, limit int, maxID int64) (results []SearchResult, hasMore bool, err error) {
	matchQuery := ftsMatchQuery(query)
	if matchQuery == "" {
		return nil, false, nil
	}

	sqlQuery := `
		SELECT m.id, m.type, m.created_at, b.session_id, s.name, s.workspace_id,
			highlight(messages_fts, 0, '<mark>', '</mark>') AS excerpt
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		JOIN branches b ON b.id = m.branch_id
		JOIN sessions s ON s.id = b.session_id
		WHERE messages_fts MATCH ?`
	args := []any{matchQuery}
	if maxID > 0 {
		sqlQuery += ` AND m.id < ?`
		args = append(args, maxID)
	}
	sqlQuery += ` ORDER BY m.id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, qerr := db.read.QueryContext(ctx, sqlQuery, args...)
	if qerr != nil {
		return nil, false, apierror.Wrap(apierror.KindInternal, "search messages", qerr)
	}
	defer rows.Close()

	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.MessageID, &r.Type, &r.CreatedAt, &r.SessionID, &r.SessionName, &r.WorkspaceID, &r.Excerpt); err != nil {
			return nil, false, apierror.Wrap(apierror.KindInternal, "scan search result", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, apierror.Wrap(apierror.KindInternal, "iterate search results", err)
	}

	if len(results) > limit {
		results = results[:limit]
		hasMore = true
	}
	return results, hasMore, nil
}

// ftsMatchQuery builds an FTS5 MATCH expression that ANDs together each
// whitespace-separated term as a standalone token match, so every term
// the caller typed must appear (in any order) for a row to match.
// Quote characters are stripped to avoid breaking FTS5 query syntax.
func ftsMatchQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	var terms []string
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	if len(terms) == 0 {
		return ""
	}
	return strings.Join(terms, " AND ")
}
