package server

import (
	"net/http"
	"strings"
)

// authMiddleware requires a valid API token on protected routes when one
// is configured
func (rs *RadioServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth check if authentication is disabled
		if rs.verifier == nil || !rs.verifier.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if !rs.verifier.Verify(requestToken(r)) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="radyo"`)
			rs.respondWithError(w, r, http.StatusUnauthorized, "Authentication required", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isPublicPath checks if a path should be accessible without authentication
func isPublicPath(path string) bool {
	publicPaths := []string{
		"/health",
	}

	for _, publicPath := range publicPaths {
		if strings.HasPrefix(path, publicPath) {
			return true
		}
	}

	return false
}

// requestToken reads the bearer token. EventSource clients cannot set
// headers, so the token query parameter is accepted as well.
func requestToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
