package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/internal/turn"
	"github.com/agentserver/agentserver/pkg/types"
)

// startRequest is POST /api/chat's body: new session + first message.
type startRequest struct {
	Message      string                 `json:"message"`
	SystemPrompt string                 `json:"systemPrompt"`
	WorkspaceID  string                 `json:"workspaceId"`
	Attachments  []types.FileAttachment `json:"attachments"`
}

func (s *Server) handleChatStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	s.streamTurn(w, r, "", func(ctx context.Context) error {
		_, _, err := s.engine.Start(ctx, req.SystemPrompt, req.WorkspaceID, turn.SendInput{
			Text:        req.Message,
			Attachments: req.Attachments,
		})
		return err
	})
}

// messageRequest is POST /api/chat/message's body: continue a session.
type messageRequest struct {
	SessionID   string                 `json:"sessionId"`
	Message     string                 `json:"message"`
	Attachments []types.FileAttachment `json:"attachments"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	session, err := s.db.GetSession(r.Context(), req.SessionID)
	if err != nil {
		writeErr(w, err)
		return
	}

	s.streamTurn(w, r, session.PrimaryBranchID, func(ctx context.Context) error {
		return s.engine.Send(ctx, turn.SendInput{
			SessionID:   req.SessionID,
			BranchID:    session.PrimaryBranchID,
			Text:        req.Message,
			Attachments: req.Attachments,
		})
	})
}

// confirmRequest is the confirm endpoint's body.
type confirmRequest struct {
	Approved     bool           `json:"approved"`
	ModifiedData map[string]any `json:"modifiedData"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	branchID := chi.URLParam(r, "branchId")

	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	s.streamTurn(w, r, branchID, func(ctx context.Context) error {
		return s.engine.Confirm(ctx, branchID, req.Approved, req.ModifiedData)
	})
}

// branchRequest is POST /api/chat/{sessionId}/branch's body, shared by
// the edit path and the ?retry=1 path.
type branchRequest struct {
	Content           string                 `json:"content"`
	Model             string                 `json:"model"`
	SystemPrompt      string                 `json:"systemPrompt"`
	OriginalMessageID *int64                 `json:"originalMessageId"`
	UpdatedMessageID  *int64                 `json:"updatedMessageId"`
	NewMessageText    string                 `json:"newMessageText"`
	Attachments       []types.FileAttachment `json:"attachments"`
}

func (s *Server) handleBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	if r.URL.Query().Get("retry") == "1" {
		if req.OriginalMessageID == nil {
			writeErr(w, apierror.BadRequest("retry requires originalMessageId"))
			return
		}
		s.streamTurn(w, r, "", func(ctx context.Context) error {
			_, err := s.engine.Retry(ctx, *req.OriginalMessageID, req.Model)
			return err
		})
		return
	}

	if req.OriginalMessageID == nil {
		writeErr(w, apierror.BadRequest("edit requires originalMessageId"))
		return
	}
	newText := req.NewMessageText
	if newText == "" {
		newText = req.Content
	}
	s.streamTurn(w, r, "", func(ctx context.Context) error {
		_, err := s.engine.Edit(ctx, *req.OriginalMessageID, newText, req.Attachments, req.Model)
		return err
	})
}

type retryErrorRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleRetryError(w http.ResponseWriter, r *http.Request) {
	branchID := chi.URLParam(r, "branchId")

	var req retryErrorRequest
	_ = decodeJSON(r, &req) // body is optional; a missing/empty one just uses the registry default model

	s.streamTurn(w, r, "", func(ctx context.Context) error {
		_, err := s.engine.ErrorRetry(ctx, branchID, req.Model)
		return err
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	q := r.URL.Query()

	branchID := q.Get("primaryBranchId")
	if branchID == "" {
		session, err := s.db.GetSession(r.Context(), sessionID)
		if err != nil {
			writeErr(w, err)
			return
		}
		branchID = session.PrimaryBranchID
	}

	var before *int64
	if v := q.Get("beforeMessageId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(w, apierror.BadRequest("invalid beforeMessageId"))
			return
		}
		before = &id
	}

	fetchLimit := 50
	if v := q.Get("fetchLimit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, apierror.BadRequest("invalid fetchLimit"))
			return
		}
		fetchLimit = n
	}

	history, err := s.db.GetHistory(r.Context(), branchID, before, fetchLimit)
	if err != nil {
		writeErr(w, err)
		return
	}

	hasMore := len(history) > fetchLimit
	if hasMore {
		history = history[:fetchLimit]
	}

	dto := make([]turn.HistoryMessage, len(history))
	for i, m := range history {
		dto[i] = toHistoryMessage(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": dto,
		"hasMore": hasMore,
	})
}

type setPrimaryBranchRequest struct {
	BranchID string `json:"branchId"`
}

func (s *Server) handleSetPrimaryBranch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	var req setPrimaryBranchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.db.SetPrimaryBranch(r.Context(), sessionID, req.BranchID); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.db.RenameSession(r.Context(), sessionID, req.Name); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	session, err := s.db.GetSession(r.Context(), sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.db.SetArchived(r.Context(), sessionID, !session.Archived); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

type moveWorkspaceRequest struct {
	WorkspaceID string `json:"workspaceId"`
}

func (s *Server) handleMoveWorkspace(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	var req moveWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.db.SetWorkspace(r.Context(), sessionID, req.WorkspaceID); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

type extractRequest struct {
	MessageID int64 `json:"messageId"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	newSessionID, newBranchID, err := s.db.ExtractSession(r.Context(), req.MessageID, nowMillis())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"sessionId": newSessionID,
		"branchId":  newBranchID,
	})
}

func (s *Server) handleListAllSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.db.ListSessions(r.Context(), "", false)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	includeArchived := r.URL.Query().Get("includeArchived") == "1"
	sessions, err := s.db.ListSessions(r.Context(), workspaceID, includeArchived)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// handleStreamBranch serves the "load existing" SSE sequence of §6.1
// (`W -> (1 | (0 -> events... -> (Q|E)))`) for a client reattaching to
// a session's branch — e.g. a page reload while a turn is still
// running, or simply opening a conversation that was already idle.
func (s *Server) handleStreamBranch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	branchID := chi.URLParam(r, "branchId")

	session, err := s.db.GetSession(r.Context(), sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.streamLoad(w, r, session.WorkspaceID, branchID)
}
