package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/agentserver/agentserver/internal/apierror"
)

// ErrorResponse is the JSON body written for every failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable kind string alongside a human message.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeErr maps err's apierror.Kind to an HTTP status via
// apierror.HTTPStatus and writes it as an ErrorResponse. An err with no
// typed Kind is reported as KindInternal, matching apierror.KindOf.
func writeErr(w http.ResponseWriter, err error) {
	kind := apierror.KindOf(err)
	writeJSON(w, apierror.HTTPStatus(kind), ErrorResponse{
		Error: ErrorDetail{Kind: string(kind), Message: err.Error()},
	})
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// decodeJSON reads and unmarshals r's body into v, reporting a
// KindBadRequest apierror on malformed input so handlers can pass it
// straight to writeErr.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierror.BadRequest("invalid request body: %v", err)
	}
	return nil
}
