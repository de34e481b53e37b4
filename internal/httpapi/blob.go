package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/internal/blobstore"
)

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	data, err := s.blobs.Get(hash)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			writeErr(w, apierror.NotFound("blob %q not found", hash))
			return
		}
		writeErr(w, apierror.Wrap(apierror.KindInternal, "read blob", err))
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
