// Package types defines the data model shared across the agent server:
// sessions, branches, messages, environments, and workspaces.
package types

import "strings"

// Session identifies one conversation. A leading "." marks a temporary
// session excluded from listings; an embedded "." after position 0 marks
// a subsession sharing its parent's sandbox.
type Session struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SystemPrompt    string `json:"systemPrompt"`
	WorkspaceID     string `json:"workspaceId"`
	PrimaryBranchID string `json:"primaryBranchId"`
	LastUpdatedAt   int64  `json:"lastUpdatedAt"`
	Archived        bool   `json:"archived"`
}

// IsTemporary reports whether the session is excluded from listings.
func (s Session) IsTemporary() bool {
	return IsTemporarySessionID(s.ID)
}

// IsSubsession reports whether the session is a child of another session.
func (s Session) IsSubsession() bool {
	return IsSubsessionID(s.ID)
}

// IsTemporarySessionID reports whether a session id begins with ".".
func IsTemporarySessionID(id string) bool {
	return strings.HasPrefix(id, ".")
}

// SplitSessionID returns (main, suffix) where main is id up to the first
// "." strictly after position 0, and suffix is the remainder (including
// that "."). If no such "." exists, it returns (id, "").
func SplitSessionID(id string) (main string, suffix string) {
	if len(id) == 0 {
		return id, ""
	}
	idx := strings.Index(id[1:], ".")
	if idx < 0 {
		return id, ""
	}
	pos := idx + 1
	return id[:pos], id[pos:]
}

// IsSubsessionID reports whether a session id names a subsession.
func IsSubsessionID(id string) bool {
	_, suffix := SplitSessionID(id)
	return suffix != ""
}

// Workspace groups sessions sharing a default system prompt.
type Workspace struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	DefaultSystemPrompt string `json:"defaultSystemPrompt"`
}

// Branch is a linear sequence of messages forming one plausible
// conversation path. Branches form a forest rooted at a session's
// initial branch.
type Branch struct {
	ID                  string  `json:"id"`
	SessionID           string  `json:"sessionId"`
	ParentBranchID      *string `json:"parentBranchId,omitempty"`
	BranchFromMessageID *int64  `json:"branchFromMessageId,omitempty"`
	PendingConfirmation *string `json:"pendingConfirmation,omitempty"`
	CreatedAt           int64   `json:"createdAt"`
}
