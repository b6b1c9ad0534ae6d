package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/api/response"
)

// DefaultActor is recorded when the upstream proxy does not name a user.
const DefaultActor = "admin"

// Auth checks the bearer token (or the token query parameter, which browsers
// need for websockets) against token and records the calling user
// from X-Forwarded-User for the activity feed. An empty token disables the
// check; the console is then expected to sit behind an authenticating proxy.
func Auth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := extractToken(r)
				if got == "" {
					response.WriteError(w, http.StatusUnauthorized, "missing API token")
					return
				}
				if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					response.WriteError(w, http.StatusUnauthorized, "invalid API token")
					return
				}
			}

			actor := strings.TrimSpace(r.Header.Get("X-Forwarded-User"))
			if actor == "" {
				actor = DefaultActor
			}
			next.ServeHTTP(w, r.WithContext(activity.WithActor(r.Context(), actor)))
		})
	}
}

func extractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return r.URL.Query().Get("token")
}
