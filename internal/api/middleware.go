// Package api implements the Folio REST API using chi.
package api

import (
	"net/http"
	"strings"

	"github.com/starford/folio/internal/session"
)

// TokenVerifier validates bearer access tokens. Implemented by *session.Verifier.
type TokenVerifier interface {
	Verify(token string) (session.Session, error)
}

// AuthMiddleware attaches the session user to the request context.
// With a nil verifier (disabled mode) every request acts as devUserID.
// Otherwise a valid "Authorization: Bearer <token>" header attaches the token
// subject; requests without the header stay anonymous and fail with 401 at
// the first operation, and an invalid token is rejected immediately.
func AuthMiddleware(v TokenVerifier, devUserID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				ctx := session.NewContext(r.Context(), session.Session{UserID: devUserID})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			s, err := v.Verify(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), s)))
		})
	}
}
