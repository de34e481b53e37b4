package httpapi

import "net/http"

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	MaxID int64  `json:"max_id"`
}

type searchResultDTO struct {
	MessageID   int64  `json:"message_id"`
	SessionID   string `json:"session_id"`
	Excerpt     string `json:"excerpt"`
	Type        string `json:"type"`
	CreatedAt   int64  `json:"created_at"`
	SessionName string `json:"session_name"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}

	results, hasMore, err := s.db.Search(r.Context(), req.Query, req.Limit, req.MaxID)
	if err != nil {
		writeErr(w, err)
		return
	}

	dto := make([]searchResultDTO, len(results))
	for i, r := range results {
		dto[i] = searchResultDTO{
			MessageID:   r.MessageID,
			SessionID:   r.SessionID,
			Excerpt:     r.Excerpt,
			Type:        r.Type,
			CreatedAt:   r.CreatedAt,
			SessionName: r.SessionName,
			WorkspaceID: r.WorkspaceID,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":  dto,
		"has_more": hasMore,
	})
}
