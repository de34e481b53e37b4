package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/agentserver/agentserver/internal/apierror"
)

const csrfHeader = "X-CSRF-Token"

// newCSRFToken mints a fresh random token for the process lifetime.
// spec.md leaves the exact issuance mechanism unspecified beyond "a
// server-issued token"; nothing in the retrieved corpus covers CSRF
// middleware, so this is built directly on crypto/rand and
// crypto/subtle rather than grounded in a pack library (see DESIGN.md).
func newCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// handleCSRFToken issues the server's current token. A client fetches
// it once after load and attaches it to every mutating request.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"token": s.csrfToken})
}

// csrfMiddleware rejects any non-GET/HEAD request whose X-CSRF-Token
// header doesn't constant-time-match the server's token, so a page
// loaded from a third-party origin can't ride a user's cookies into a
// state-changing call without having first read the token itself.
func (s *Server) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get(csrfHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.csrfToken)) != 1 {
			writeErr(w, apierror.New(apierror.KindUnauthorized, "missing or invalid X-CSRF-Token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
