package middleware

import (
	"net/http"

	"github.com/agrisubsidy/backend/internal/services"
)

// RequireSession resolves the session cookie against the store and threads
// the session through the request context. Missing, unknown, and expired
// tokens all get the same 401.
func RequireSession(sessions *services.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(services.SessionCookieName())
			if err != nil || cookie.Value == "" {
				services.SendErrorResponse(w, "You are not authorized", http.StatusUnauthorized, nil)
				return
			}

			session, err := sessions.Authenticate(r.Context(), cookie.Value)
			if err != nil {
				services.HandleServiceError(w, "AUTH", err)
				return
			}
			if session == nil {
				services.SendErrorResponse(w, "You are not authorized", http.StatusUnauthorized, nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(services.WithSession(r.Context(), session)))
		})
	}
}
