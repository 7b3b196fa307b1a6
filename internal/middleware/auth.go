package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/supervisor/internal/identity"
)

// BearerToken rejects requests that do not carry token as a bearer
// credential. An empty token disables the check. Websocket clients that
// cannot set headers may pass it as the access_token query parameter.
func BearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				presented = r.URL.Query().Get("access_token")
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				slog.Warn("Rejected status request", "ip", identity.IPFromRequest(r), "path", r.URL.Path)
				w.Header().Set("WWW-Authenticate", `Bearer realm="supervisor"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
